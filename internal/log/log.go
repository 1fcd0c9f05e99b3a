// Package log provides the structured logger used across the runtime for
// diagnostics that spec.md requires be surfaced but never silently
// swallowed: instrumentation failures, reactor close failures, and
// injected callbacks that fail during the injection queue's final drain.
package log

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Logger is a thin alias so call sites don't need to import log/slog
// directly; it also lets us swap the handler in one place.
type Logger = slog.Logger

// New returns a tint-backed structured logger writing to w (os.Stderr when
// w is nil), matching the level the pack's other runtime project
// (johanjanssens-frankenasync) uses tint for.
func New(w *os.File) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := tint.NewHandler(w, &tint.Options{Level: slog.LevelInfo})
	return slog.New(h)
}

// Nop returns a logger that discards everything, used by components that
// weren't handed an explicit logger (e.g. ad hoc test Runners).
func Nop() *Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
