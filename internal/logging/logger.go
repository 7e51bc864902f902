// Package logging builds the charm logger every roach command logs
// through. Level, prefix and destination come from the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	EnvLevel  = "ROACH_LOG_LEVEL"
	EnvPrefix = "ROACH_LOG_PREFIX"
	EnvToFile = "ROACH_LOG_TO_FILE"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	Path   string // log file, empty when logging to stderr
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to charm levels. Anything
// else is info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           ParseLevel(os.Getenv(EnvLevel)),
	})

	prefix := os.Getenv(EnvPrefix)
	if prefix == "" {
		prefix = "roach "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// LogFileName names the file NewLogger writes to when ROACH_LOG_TO_FILE=1.
func LogFileName(t time.Time) string {
	return fmt.Sprintf("roach-%s-debug.log", t.Format("20060102-150405"))
}

// NewLogger creates a new logger based on environment variables
// ROACH_LOG_LEVEL: debug, info, warn, error (default: info)
// ROACH_LOG_PREFIX: prefix for log messages (default: "roach ")
// ROACH_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	if os.Getenv(EnvToFile) == "1" {
		name := LogFileName(time.Now())
		if lc, err := NewFileLogger(name); err == nil {
			return lc
		}
		// If file creation fails, fall back to stderr
	}
	return NewLoggerWithWriter(os.Stderr)
}

// NewFileLogger appends to the log file at path.
func NewFileLogger(path string) (*LoggerCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	lc := NewLoggerWithWriter(f)
	lc.Path = path
	return lc, nil
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return ParseLevel(os.Getenv(EnvLevel)) == log.DebugLevel
}
