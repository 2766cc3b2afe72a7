// Package logger builds the charmbracelet/log loggers used by every component.
// Output goes to stderr because stdout carries the MCP protocol.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates a text logger with the given prefix at the global log level.
func New(prefix string) *log.Logger {
	return NewWithWriter(os.Stderr, prefix, log.GetLevel())
}

// NewWithWriter creates a text logger writing to w.
func NewWithWriter(w io.Writer, prefix string, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
	})
}

// Discard returns a logger that drops everything, for tests.
func Discard() *log.Logger {
	return NewWithWriter(io.Discard, "", log.FatalLevel)
}

// SetLevel parses level and applies it globally. Unknown levels fall back to info.
func SetLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	return lvl
}

// OrDefault returns l, or a new prefixed logger when l is nil.
func OrDefault(l *log.Logger, prefix string) *log.Logger {
	if l != nil {
		return l
	}
	return New(prefix)
}
