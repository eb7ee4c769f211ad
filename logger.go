package pathtrace

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/pathtrace/accel"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/internal/kernel"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger configures the logger for pathtrace and all its sub-packages.
// By default, pathtrace produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by pathtrace:
//   - [slog.LevelDebug]: buffer sizes, structure builds, per-frame sample budgets
//   - [slog.LevelInfo]: device selection, scene loads, swap target creation
//   - [slog.LevelWarn]: recovered swap target invalidation
//   - [slog.LevelError]: fatal session errors
//
// Example:
//
//	pathtrace.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	rt.SetLogger(l)
	soft.SetLogger(l)
	accel.SetLogger(l)
	frame.SetLogger(l)
	kernel.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
