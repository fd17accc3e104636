package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes runtime messages to an slog.Logger.
// Useful when the embedding application already logs through slog.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given
// slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the message at the nearest slog level. Spew maps to Debug.
func (a *SlogAdapter) Log(level Level, msg string) {
	var sl slog.Level
	switch level {
	case LevelError:
		sl = slog.LevelError
	case LevelWarn:
		sl = slog.LevelWarn
	case LevelInfo:
		sl = slog.LevelInfo
	case LevelDebug, LevelSpew:
		sl = slog.LevelDebug
	default:
		return
	}
	a.logger.LogAttrs(context.Background(), sl, msg,
		slog.String("source", "acqkit"))
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
