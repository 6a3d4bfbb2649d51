package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler fans each record out to both handlers.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.secondary.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr, secondErr error
	if t.primary.Enabled(ctx, record.Level) {
		firstErr = t.primary.Handle(ctx, record.Clone())
	}
	if t.secondary.Enabled(ctx, record.Level) {
		secondErr = t.secondary.Handle(ctx, record.Clone())
	}
	return errors.Join(firstErr, secondErr)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.primary.WithAttrs(attrs), t.secondary.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.primary.WithGroup(name), t.secondary.WithGroup(name)}
}
