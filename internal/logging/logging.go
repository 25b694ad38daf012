// Package logging builds the slog loggers shared by the client and server.
package logging

import (
	"io"
	"log/slog"
)

// LevelInfo is re-exported so callers need not import slog for one constant.
const LevelInfo = slog.LevelInfo

// New returns a text logger writing to w at Warn. Debug lowers the level
// to Debug.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return NewLevel(w, level)
}

// NewLevel returns a text logger writing to w at level.
func NewLevel(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
