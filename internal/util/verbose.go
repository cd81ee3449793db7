package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerMu sync.Mutex
	logger   *slog.Logger
	level    = new(slog.LevelVar)
)

// InitLogger initializes the global slog logger. Verbose runs log at debug
// level; json switches the handler to JSON lines for log shippers.
func InitLogger(w io.Writer, verbose, json bool) *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	level.Set(slog.LevelInfo)
	if verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	loggerMu.Lock()
	l := logger
	loggerMu.Unlock()
	if l == nil {
		// Fallback initialization with INFO level
		return InitLogger(os.Stderr, IsVerbose(), false)
	}
	return l
}

// IsVerbose checks if verbose mode is enabled by looking at command line arguments
func IsVerbose() bool {
	for _, arg := range os.Args {
		if arg == "--verbose" || strings.HasPrefix(arg, "--verbose=true") {
			return true
		}
	}
	return false
}
