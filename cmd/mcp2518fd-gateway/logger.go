package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-mcp2518fd/internal/logging"
)

// setupLogger installs the global logger. The level was checked by validate.
func setupLogger(format, level string) *slog.Logger {
	lvl, _ := logging.ParseLevel(level)
	l := logging.New(format, lvl, os.Stderr).With("app", "mcp2518fd-gateway")
	logging.Set(l)
	return l
}
