package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		"DEBUG":   log.DebugLevel,
		"warn":    log.WarnLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"":        log.InfoLevel,
		"verbose": log.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	t.Setenv(EnvPrefix, "")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("hidden")
	lg.Warn("shown", "region", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	for _, want := range []string{"roach", "shown", "region=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
	if err := lg.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestNewFileLogger(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	path := filepath.Join(t.TempDir(), "roach.log")

	lg, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	lg.Debug("decoded", "count", 12)
	if err := lg.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "count=12") {
		t.Errorf("log file = %q", data)
	}
	if !IsDebug() {
		t.Error("IsDebug() = false with ROACH_LOG_LEVEL=debug")
	}
}

func TestLogFileName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	if got, want := LogFileName(ts), "roach-20240309-140506-debug.log"; got != want {
		t.Errorf("LogFileName() = %q, want %q", got, want)
	}
}
