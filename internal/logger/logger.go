package logger

import (
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Level aliases the underlying log level type so callers never import the
// backend directly.
type Level = charmlog.Level

var std = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: true,
	Level:           charmlog.InfoLevel,
})

// ParseLevel parses a level name like "debug" or "warn".
func ParseLevel(s string) (Level, error) {
	return charmlog.ParseLevel(s)
}

// SetLevel sets the minimum level that will be printed.
func SetLevel(l Level) {
	std.SetLevel(l)
}

// Debug prints a debug message
func Debug(format string, args ...any) {
	std.Debug(fmt.Sprintf(format, args...))
}

// Info prints an info message
func Info(format string, args ...any) {
	std.Info(fmt.Sprintf(format, args...))
}

// Warn prints a warning message
func Warn(format string, args ...any) {
	std.Warn(fmt.Sprintf(format, args...))
}

// Error prints an error message
func Error(format string, args ...any) {
	std.Error(fmt.Sprintf(format, args...))
}
