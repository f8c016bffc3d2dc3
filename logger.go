package enhance

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/enhance/internal/gpu"
	"github.com/gogpu/enhance/internal/shader"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine,
// including offloaded session workers.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for enhance and its internal packages.
// By default, enhance produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore silent logging.
//
// Log levels used by enhance:
//   - [slog.LevelDebug]: pipeline creation, surface resizes, dropped frames
//   - [slog.LevelInfo]: session acquire, release, and termination
//   - [slog.LevelWarn]: program fallbacks, release failures, skipped frames
//
// Example:
//
//	enhance.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	gpu.SetLogger(l)
	shader.SetLogger(l)
}

// Logger returns the current logger used by enhance.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }
