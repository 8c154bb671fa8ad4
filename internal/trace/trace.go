// Package trace carries W3C-style trace identifiers and the correlation session id
// through the pipeline: HTTP and websocket ingress, collaborator calls and sink flushes.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"
)

// Propagation keys, shared by HTTP headers and gRPC metadata.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
	SessionIDKey    = "x-session-id"
)

type ctxKey struct{}

// Context identifies one span. SessionID is inherited by every child span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	SessionID    string
}

// New creates a root context with fresh ids.
func New() Context {
	return Context{TraceID: generateTraceID(), SpanID: generateSpanID()}
}

// child opens a span below c. A zero c starts a new trace.
func (c Context) child() Context {
	if c.TraceID == "" {
		tc := New()
		tc.SessionID = c.SessionID
		return tc
	}
	return Context{
		TraceID:      c.TraceID,
		SpanID:       generateSpanID(),
		ParentSpanID: c.SpanID,
		SessionID:    c.SessionID,
	}
}

// FromContext returns the trace context stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns the existing trace context or starts a new one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// WithSession tags ctx with a correlation session id, starting a trace if needed.
func WithSession(ctx context.Context, sessionID string) context.Context {
	ctx, tc := EnsureContext(ctx)
	tc.SessionID = sessionID
	return WithContext(ctx, tc)
}

func generateTraceID() string { return randomHex(16) }

func generateSpanID() string { return randomHex(8) }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (c Context) logArgs() []any {
	args := make([]any, 0, 8)
	args = append(args, "trace_id", c.TraceID, "span_id", c.SpanID)
	if c.ParentSpanID != "" {
		args = append(args, "parent_span_id", c.ParentSpanID)
	}
	if c.SessionID != "" {
		args = append(args, "session_id", c.SessionID)
	}
	return args
}

// Span is a timed operation: a scoring call, a tone lookup, a batch flush.
type Span struct {
	Name      string
	Ctx       Context
	StartTime time.Time
	EndTime   time.Time
	Attrs     map[string]any
}

// StartSpan begins a span under whatever trace ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	s := &Span{
		Name:      name,
		Ctx:       parent.child(),
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return WithContext(ctx, s.Ctx), s
}

// End marks the span complete and logs it at debug level. Later calls are no-ops.
func (s *Span) End() {
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	slog.Debug("span finished", "span", s)
}

// SetAttr sets a span attribute.
func (s *Span) SetAttr(key string, val any) {
	s.Attrs[key] = val
}

// Duration returns zero until the span has ended.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("span_name", s.Name),
		slog.Duration("duration", s.Duration()),
	}
	args := s.Ctx.logArgs()
	for i := 0; i+1 < len(args); i += 2 {
		attrs = append(attrs, slog.Any(args[i].(string), args[i+1]))
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

// Logger returns the default logger annotated with ctx's trace and session ids.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(tc.logArgs()...)
}
