package trace

import (
	"context"
	"encoding/json"
	"net/http"
)

// Middleware continues the caller's trace, or starts one, for every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithContext(r.Context(), extract(r.Header.Get))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// InjectHeaders copies the trace context in ctx onto outgoing request headers.
func InjectHeaders(ctx context.Context, h http.Header) {
	if tc, ok := FromContext(ctx); ok {
		tc.inject(h.Set)
	}
}

// ExtractFromJSON reads trace_id from a websocket message.
// The bool reports whether the message carried one; the context is always usable.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return Context{TraceID: msg.TraceID, SpanID: generateSpanID()}, true
}
