package tools

import (
	"log/slog"
	"os"
	"strings"
)

var logLevel = new(slog.LevelVar)

// Logger is the global structured logger instance.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: logLevel,
}))

// SetLogLevel adjusts the global logger level ("debug", "info", "warn", "error").
// Unknown names leave the level at info.
func SetLogLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}
