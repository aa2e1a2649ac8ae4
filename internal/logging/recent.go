package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Problem is a captured warning or error line.
type Problem struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	EventType string    `json:"event_type,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// RecentProblems keeps the last warnings and errors in memory so the daemon
// can surface them through status without reading log files.
type RecentProblems struct {
	mu       sync.Mutex
	capacity int
	items    []Problem
}

// NewRecentProblems creates a ring of the given capacity (default 20).
func NewRecentProblems(capacity int) *RecentProblems {
	if capacity <= 0 {
		capacity = 20
	}
	return &RecentProblems{capacity: capacity}
}

// Handler returns a slog handler that records into the ring.
func (r *RecentProblems) Handler() slog.Handler {
	return &recentHandler{ring: r}
}

// Capture returns a logger that writes through base and also records its
// warnings and errors into the ring. A nil base captures only.
func (r *RecentProblems) Capture(base *slog.Logger) *slog.Logger {
	if base == nil {
		return slog.New(r.Handler())
	}
	return slog.New(&captureHandler{next: base.Handler(), ring: &recentHandler{ring: r}})
}

// Snapshot returns the captured problems, oldest first.
func (r *RecentProblems) Snapshot() []Problem {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Problem(nil), r.items...)
}

func (r *RecentProblems) add(p Problem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, p)
	if over := len(r.items) - r.capacity; over > 0 {
		r.items = append(r.items[:0], r.items[over:]...)
	}
}

type recentHandler struct {
	ring  *RecentProblems
	attrs []slog.Attr
}

func (h *recentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (h *recentHandler) Handle(_ context.Context, record slog.Record) error {
	p := Problem{Time: record.Time, Level: levelName(record.Level), Message: record.Message}
	visit := func(attr slog.Attr) {
		switch attr.Key {
		case FieldComponent:
			p.Component = attr.Value.String()
		case FieldEventType:
			p.EventType = attr.Value.String()
		case "error":
			p.Error = formatValue(attr.Value.Resolve())
		}
	}
	for _, attr := range h.attrs {
		visit(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		visit(attr)
		return true
	})
	h.ring.add(p)
	return nil
}

func (h *recentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recentHandler{ring: h.ring, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *recentHandler) WithGroup(string) slog.Handler { return h }

func levelName(level slog.Level) string {
	if level >= slog.LevelError {
		return "error"
	}
	return "warn"
}

// captureHandler forwards every record to next and problems to ring.
type captureHandler struct {
	next slog.Handler
	ring *recentHandler
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || h.ring.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.next.Enabled(ctx, record.Level) {
		err = h.next.Handle(ctx, record.Clone())
	}
	if h.ring.Enabled(ctx, record.Level) {
		_ = h.ring.Handle(ctx, record)
	}
	return err
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{next: h.next.WithAttrs(attrs), ring: h.ring.WithAttrs(attrs).(*recentHandler)}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	return &captureHandler{next: h.next.WithGroup(name), ring: h.ring}
}
