package log

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"roach/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	closer      *logging.LoggerCloser
)

// Setup installs the charm logger as the slog default. An empty logFile
// keeps the environment's choice of destination. Only the first call has
// an effect.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		lc := logging.NewLogger()
		if logFile != "" {
			if fl, err := logging.NewFileLogger(logFile); err == nil {
				lc = fl
			}
		}
		if debug {
			lc.SetLevel(charmlog.DebugLevel)
			lc.SetReportCaller(true)
		}
		closer = lc
		slog.SetDefault(slog.New(lc.Logger))
		initialized.Store(true)
	})
}

func Initialized() bool {
	return initialized.Load()
}

// Close flushes and closes a log file opened by Setup.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
