package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect [files...]",
		Short: "Print the inspected schema of database files",
		Example: `  # Summary table
  litebrowse inspect data.db

  # Full inspection as JSON
  litebrowse inspect data.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, md, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			in, err := inspect.New(cfg.Databases, inspect.Options{Driver: cfg.Driver, Metadata: md})
			if err != nil {
				return err
			}
			dbs, err := in.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dbs)
			}
			printSummary(cmd.OutOrStdout(), in.Names(), dbs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full inspection as JSON")
	return cmd
}

func printSummary(w io.Writer, names []string, dbs map[string]*inspect.Database) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATABASE\tSIZE\tTABLES\tVIEWS\tROWS\tHASH")
	for _, name := range names {
		db := dbs[name]
		var rows int64
		for _, t := range db.Tables {
			if !t.Hidden {
				rows += t.Count
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			name,
			humanize.Bytes(uint64(db.Size)),
			len(db.Tables)-db.HiddenCount(),
			len(db.Views),
			humanize.Comma(rows),
			db.ShortHash(),
		)
	}
	tw.Flush()
}
