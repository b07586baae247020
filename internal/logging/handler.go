package logging

import (
	"context"
	"log/slog"
	"sync"
)

// A record held back until the output handler is known.
type pending struct {
	ctx    context.Context
	record slog.Record
	ops    []op
}

// A WithAttrs or WithGroup call recorded on a derived handler.
type op struct {
	group string
	attrs []slog.Attr
}

// Shared state of a handler and all handlers derived from it.
type core struct {
	mu      sync.Mutex
	level   slog.LevelVar
	target  slog.Handler
	pending []pending
}

// Buffers records until an output handler is attached.
//
// Handlers derived with WithAttrs and WithGroup share the buffer and the
// level with their parent.
type Handler struct {
	core *core
	ops  []op
}

// Creates a buffering [Handler] at info level.
func NewHandler() *Handler {
	return &Handler{core: &core{}}
}

// Sets the minimum level for all handlers sharing this buffer.
func (h *Handler) SetLevel(level slog.Level) {
	h.core.level.Set(level)
}

// Returns the current minimum level.
func (h *Handler) Level() slog.Level {
	return h.core.level.Level()
}

// Attaches the output handler and replays buffered records.
//
// Records below the current level are discarded. Subsequent records go
// straight to target.
func (h *Handler) Flush(target slog.Handler) error {
	h.core.mu.Lock()
	defer h.core.mu.Unlock()

	h.core.target = target
	buffered := h.core.pending
	h.core.pending = nil

	for _, p := range buffered {
		if p.record.Level < h.core.level.Level() {
			continue
		}
		if err := apply(target, p.ops).Handle(p.ctx, p.record); err != nil {
			return err
		}
	}
	return nil
}

// Implements [slog.Handler].
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.core.level.Level()
}

// Implements [slog.Handler].
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	h.core.mu.Lock()
	defer h.core.mu.Unlock()

	if h.core.target == nil {
		h.core.pending = append(h.core.pending, pending{ctx: ctx, record: r.Clone(), ops: h.ops})
		return nil
	}
	return apply(h.core.target, h.ops).Handle(ctx, r)
}

// Implements [slog.Handler].
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.derive(op{attrs: attrs})
}

// Implements [slog.Handler].
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(op{group: name})
}

func (h *Handler) derive(o op) *Handler {
	ops := make([]op, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &Handler{core: h.core, ops: append(ops, o)}
}

// Replays recorded WithAttrs/WithGroup calls onto target.
func apply(target slog.Handler, ops []op) slog.Handler {
	for _, o := range ops {
		if o.group != "" {
			target = target.WithGroup(o.group)
		} else {
			target = target.WithAttrs(o.attrs)
		}
	}
	return target
}
