// Package log provides structured logging for the continuation engine. It
// wraps zerolog with a process-wide default logger and per-module child
// loggers.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var defaultLogger atomic.Pointer[zerolog.Logger]

func init() {
	l := New(os.Stderr, zerolog.InfoLevel)
	defaultLogger.Store(&l)
}

// New creates a logger writing JSON lines to w at the given level
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewConsole creates a human-readable logger for terminals
func NewConsole(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
}

// SetDefault replaces the process-wide logger
func SetDefault(l zerolog.Logger) {
	defaultLogger.Store(&l)
}

// Default returns the process-wide logger
func Default() zerolog.Logger {
	return *defaultLogger.Load()
}

// Module returns a child of the default logger tagged with a module name.
// This is how the slicer, backends and CLI obtain their loggers.
func Module(name string) zerolog.Logger {
	return Default().With().Str("module", name).Logger()
}

// ParseLevel accepts zerolog level names, case-insensitively
func ParseLevel(s string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}
