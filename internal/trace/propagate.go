package trace

// inject writes c through set under the propagation keys.
func (c Context) inject(set func(key, val string)) {
	set(TraceIDKey, c.TraceID)
	set(SpanIDKey, c.SpanID)
	if c.ParentSpanID != "" {
		set(ParentSpanIDKey, c.ParentSpanID)
	}
	if c.SessionID != "" {
		set(SessionIDKey, c.SessionID)
	}
}

// extract continues a remote caller's trace: the caller's span becomes the parent
// and a fresh span id is minted. A missing trace id starts a new trace.
func extract(get func(key string) string) Context {
	tc := Context{
		TraceID:      get(TraceIDKey),
		SpanID:       generateSpanID(),
		ParentSpanID: get(SpanIDKey),
		SessionID:    get(SessionIDKey),
	}
	if tc.TraceID == "" {
		tc.TraceID = generateTraceID()
	}
	return tc
}
