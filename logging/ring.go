// Package logging provides a bounded in-memory view over the process's
// structured logs. RingHandler is a slog.Handler that tees every record to an
// inner handler and retains the most recent entries in a fixed-size ring
// buffer, oldest evicted first. The buffer is process-lifetime, best-effort
// state: it is never persisted and resets on restart.
package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is the default number of retained log entries
const DefaultCapacity = 1000

// Entry is one retained log record
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// ring is the shared buffer behind every derived handler. Handlers produced
// by WithAttrs/WithGroup must append to the same buffer.
type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns retained entries in chronological order
func (r *ring) snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// RingHandler is a slog.Handler that records into a bounded ring buffer
// while forwarding to an inner handler.
type RingHandler struct {
	inner  slog.Handler
	buf    *ring
	attrs  []slog.Attr
	prefix string // dotted group prefix for attr keys
}

var _ slog.Handler = (*RingHandler)(nil)

// NewRingHandler creates a RingHandler retaining the most recent capacity
// entries. If capacity is not positive, DefaultCapacity is used. If inner is
// nil, records are only retained, not forwarded.
func NewRingHandler(inner slog.Handler, capacity int) *RingHandler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingHandler{
		inner: inner,
		buf:   &ring{entries: make([]Entry, capacity)},
	}
}

// Enabled reports whether the inner handler wants the record. With no inner
// handler everything is retained.
func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.inner == nil {
		return true
	}
	return h.inner.Enabled(ctx, level)
}

// Handle retains the record and forwards it
func (h *RingHandler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[h.prefix+a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	h.buf.add(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
		Attrs:   attrs,
	})

	if h.inner == nil {
		return nil
	}
	return h.inner.Handle(ctx, rec)
}

// WithAttrs returns a handler sharing the same ring buffer
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	inner := h.inner
	if inner != nil {
		inner = inner.WithAttrs(attrs)
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &RingHandler{inner: inner, buf: h.buf, attrs: merged, prefix: h.prefix}
}

// WithGroup returns a handler sharing the same ring buffer
func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	inner := h.inner
	if inner != nil {
		inner = inner.WithGroup(name)
	}
	return &RingHandler{inner: inner, buf: h.buf, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// Entries returns a snapshot of retained entries, oldest first
func (h *RingHandler) Entries() []Entry {
	return h.buf.snapshot()
}
