// Package log wires slog handlers which add attributes stored in a
// context. The harness binds service and node identity into ctx once
// and every log line made during a hook call picks them up.
package log

import (
	"context"
	"io"
	"log/slog"
)

type slogKeyT struct{}

var slogKey slogKeyT

type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a, attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// New builds the harness logger: JSON records on w carrying whatever
// attrs the context holds.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	ctxHandler := NewContextHandler(base)
	return slog.New(ctxHandler)
}

// Discard returns a logger dropping every record. Tests use it where
// log output is just noise.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
