package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Fanout sends every record to each non-nil handler that enables its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	targets := make(fanout, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			targets = append(targets, handler)
		}
	}
	switch len(targets) {
	case 0:
		return slog.NewTextHandler(io.Discard, nil)
	case 1:
		return targets[0]
	default:
		return targets
	}
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			errs = append(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, handler := range f {
		next[i] = fn(handler)
	}
	return next
}
