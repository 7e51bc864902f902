package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupAndRecoverPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roach.log")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	Setup(path, true)
	if !Initialized() {
		t.Fatal("Initialized() = false after Setup")
	}

	cleaned := false
	func() {
		defer RecoverPanic("worker", func() { cleaned = true })
		panic("boom")
	}()
	if !cleaned {
		t.Error("cleanup was not called")
	}

	slog.Debug("debug line", "k", "v")
	if err := Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Panic in worker", "boom", "debug line"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file does not contain %q:\n%s", want, data)
		}
	}
}

func TestRecoverPanicWithoutPanic(t *testing.T) {
	called := false
	func() {
		defer RecoverPanic("quiet", func() { called = true })
	}()
	if called {
		t.Error("cleanup ran without a panic")
	}
}
