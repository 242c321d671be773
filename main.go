package main

import (
	"os"

	"github.com/joe-ervin05/litebrowse/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
