// Package tracing records in-process span trees for imports. A span tree
// travels in the context; the root is logged through slog when the import
// finishes, at debug level or at warn level when any span failed.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	Err       error
	mu        sync.Mutex
}

// StartSpan creates a root span and stores it in the returned context. An
// empty traceID gets a random one.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent it
// starts a new trace.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// End records the end time. Calling End again has no effect.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SetError marks the span failed. A nil err is ignored.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey{}).(*Span); ok {
		return span
	}
	return nil
}

// Failed reports whether s or any descendant recorded an error.
func (s *Span) Failed() bool {
	s.mu.Lock()
	failed := s.Err != nil
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	if failed {
		return true
	}
	for _, c := range children {
		if c.Failed() {
			return true
		}
	}
	return false
}

// Log writes the span tree to slog, one record per span.
func (s *Span) Log() {
	level := slog.LevelDebug
	if s.Failed() {
		level = slog.LevelWarn
	}
	if !slog.Default().Enabled(context.Background(), level) {
		return
	}
	s.logRecursive(level, 0)
}

func (s *Span) logRecursive(level slog.Level, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err.Error())
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	slog.Log(context.Background(), level, "span", attrs...)
	for _, child := range children {
		child.logRecursive(level, depth+1)
	}
}
