package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor returns an attribute carried by ctx, if any
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// contextHandler appends extracted attributes to each record. Extracted
// attributes stay at the top level even when the logger has open groups.
type contextHandler struct {
	base       slog.Handler // handler before any WithGroup
	next       slog.Handler
	extractors []ContextExtractor
	// pending replays WithAttrs/WithGroup calls made after the first group
	pending []func(slog.Handler) slog.Handler
}

func newContextHandler(next slog.Handler, extractors []ContextExtractor) *contextHandler {
	return &contextHandler{base: next, next: next, extractors: extractors}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	var extracted []slog.Attr
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			extracted = append(extracted, attr)
		}
	}
	if len(extracted) == 0 {
		return h.next.Handle(ctx, rec)
	}
	if len(h.pending) == 0 {
		rec.AddAttrs(extracted...)
		return h.next.Handle(ctx, rec)
	}

	// Rebuild the chain with extracted attrs placed before the first group
	next := h.base.WithAttrs(extracted)
	for _, apply := range h.pending {
		next = apply(next)
	}
	return next.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	c.next = h.next.WithAttrs(attrs)
	if len(h.pending) == 0 {
		c.base = c.next
	} else {
		c.pending = append(c.pending, func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
	}
	return c
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.next = h.next.WithGroup(name)
	c.pending = append(c.pending, func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
	return c
}

func (h *contextHandler) clone() *contextHandler {
	return &contextHandler{
		base:       h.base,
		next:       h.next,
		extractors: h.extractors,
		pending:    append([]func(slog.Handler) slog.Handler(nil), h.pending...),
	}
}
