// Package logging installs the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
)

// Setup installs a text handler as the default logger and returns it.
func Setup(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
