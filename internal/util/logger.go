package util

import (
	"io"
	"log/slog"
	"os"
)

var logger *slog.Logger

// InitLogger initializes the global slog logger with appropriate level
func InitLogger(verbose bool) {
	InitLoggerTo(os.Stdout, verbose)
}

// InitLoggerTo installs a text logger writing to w as the global default
func InitLoggerTo(w io.Writer, verbose bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo, // Default level
	}

	if verbose {
		opts.Level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	if logger == nil {
		// Fallback initialization with INFO level
		InitLogger(IsVerbose())
	}
	return logger
}

// IsVerbose checks if verbose mode is enabled by looking at command line arguments
func IsVerbose() bool {
	for _, arg := range os.Args {
		if arg == "--verbose" || arg == "-v" {
			return true
		}
	}
	return false
}
