package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/spikely/platform/internal/diagnostics"
	"github.com/spikely/platform/internal/emitter"
	"github.com/spikely/platform/internal/model"
)

// mockSession records what the server forwards.
type mockSession struct {
	mu       sync.Mutex
	hub      *emitter.Hub
	lines    []model.TranscriptLine
	samples  []model.ViewerSample
	minDelta int
	history  []model.Insight
	histErr  error
}

func newMockSession() *mockSession {
	return &mockSession{hub: emitter.New(), minDelta: 5}
}

func (m *mockSession) PushTranscript(l model.TranscriptLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, l)
}

func (m *mockSession) PushViewer(s model.ViewerSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *mockSession) SetMinDelta(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v < 1 {
		v = 1
	}
	m.minDelta = v
}

func (m *mockSession) MinDelta() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minDelta
}

func (m *mockSession) Status() model.StatusEvent         { return m.hub.Status() }
func (m *mockSession) Diagnostics() diagnostics.Snapshot { return diagnostics.Snapshot{Leaks: 2} }
func (m *mockSession) Hub() *emitter.Hub                 { return m.hub }

func (m *mockSession) History(_ context.Context, limit int) ([]model.Insight, error) {
	if m.histErr != nil {
		return nil, m.histErr
	}
	if limit < len(m.history) {
		return m.history[:limit], nil
	}
	return m.history, nil
}

func (m *mockSession) lineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

func newTestServer(t *testing.T) (*Server, *mockSession) {
	t.Helper()
	sess := newMockSession()
	s := New(sess)
	t.Cleanup(s.Close)
	return s, sess
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}

	req = httptest.NewRequest("GET", "/test", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin on GET = %q, want %q", v, "*")
	}
}

func TestHandleTranscript(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		lines  int
	}{
		{"valid", `{"text":"hello chat","confidence":0.9,"t":1700000000000}`, http.StatusAccepted, 1},
		{"no timestamp", `{"text":"hello chat"}`, http.StatusAccepted, 1},
		{"empty text", `{"text":""}`, http.StatusBadRequest, 0},
		{"confidence too high", `{"text":"hi","confidence":1.5}`, http.StatusBadRequest, 0},
		{"bad json", `{"text":`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sess := newTestServer(t)
			req := httptest.NewRequest("POST", "/api/transcript", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := sess.lineCount(); got != tt.lines {
				t.Errorf("lines forwarded = %d, want %d", got, tt.lines)
			}
		})
	}
}

func TestHandleTranscriptTimestamp(t *testing.T) {
	s, sess := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/transcript", strings.NewReader(`{"text":"hi","t":1700000000000}`))
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	if got := sess.lines[0].Timestamp; !got.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp = %v", got)
	}
}

func TestHandleViewers(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"count":120}`, http.StatusAccepted},
		{"zero", `{"count":0}`, http.StatusAccepted},
		{"negative", `{"count":-3}`, http.StatusBadRequest},
		{"missing", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			req := httptest.NewRequest("POST", "/api/viewers", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestHandleThreshold(t *testing.T) {
	s, sess := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/threshold", strings.NewReader(`{"minDelta":0}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if resp["minDelta"] != 1 || sess.MinDelta() != 1 {
		t.Errorf("minDelta = %d, want clamped 1", resp["minDelta"])
	}

	req = httptest.NewRequest("POST", "/api/threshold", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing minDelta status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleStatus(t *testing.T) {
	s, sess := newTestServer(t)
	sess.hub.EmitEngineStatus(model.StatusCollecting, model.StatusMeta{})

	req := httptest.NewRequest("GET", "/api/status", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if resp.Status != model.StatusCollecting {
		t.Errorf("status = %q, want %q", resp.Status, model.StatusCollecting)
	}
	if resp.MinDelta != 5 {
		t.Errorf("minDelta = %d, want 5", resp.MinDelta)
	}
}

func TestHandleDiagnostics(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/diagnostics", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var snap diagnostics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if snap.Leaks != 2 {
		t.Errorf("leaks = %d, want 2", snap.Leaks)
	}
}

func TestHandleInsights(t *testing.T) {
	s, sess := newTestServer(t)
	sess.history = []model.Insight{{ID: "b", Delta: 9}, {ID: "a", Delta: 6}}

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"default limit", "", http.StatusOK, 2},
		{"limited", "?limit=1", http.StatusOK, 1},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/insights"+tt.query, http.NoBody)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got []model.Insight
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("json.Unmarshal error: %v", err)
			}
			if len(got) != tt.count {
				t.Errorf("len = %d, want %d", len(got), tt.count)
			}
		})
	}
}

func TestHandleInsightsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/insights", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestWebSocket(t *testing.T) {
	s, sess := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var status EngineStatusMessage
	if err := wsjson.Read(ctx, conn, &status); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if status.Type != TypeEngineStatus || status.Status != model.StatusIdle {
		t.Errorf("initial = %+v, want IDLE engine_status", status)
	}

	msg := map[string]any{"type": TypeTranscript, "text": "what's up chat", "trace_id": "abc123"}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sess.lineCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sess.lineCount() != 1 {
		t.Fatalf("lines forwarded = %d, want 1", sess.lineCount())
	}

	sess.hub.Emit(model.Insight{ID: "x1", Delta: 12, NextMove: "Keep going"})

	var in InsightMessage
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		t.Fatalf("read insight: %v", err)
	}
	if in.Type != TypeInsight || in.Insight.ID != "x1" {
		t.Errorf("insight = %+v", in)
	}
}

func TestWebSocketRejectsUnknownType(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var status EngineStatusMessage
	if err := wsjson.Read(ctx, conn, &status); err != nil {
		t.Fatalf("read initial status: %v", err)
	}

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "chat"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var em ErrorMessage
	if err := wsjson.Read(ctx, conn, &em); err != nil {
		t.Fatalf("read error message: %v", err)
	}
	if em.Type != TypeError || !strings.Contains(em.Message, "chat") {
		t.Errorf("error message = %+v", em)
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	s, _ := newTestServer(t)
	c := &client{send: make(chan any, 1)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.broadcast(ErrorMessage{Type: TypeError, Message: "one"})
	s.broadcast(ErrorMessage{Type: TypeError, Message: "two"})

	if len(c.send) != 1 {
		t.Fatalf("queued = %d, want 1", len(c.send))
	}
	if got := (<-c.send).(ErrorMessage).Message; got != "one" {
		t.Errorf("kept %q, want first message", got)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	sess := newMockSession()
	s := New(sess)
	c := &client{send: make(chan any, 4)}
	s.clients[c] = struct{}{}

	s.Close()
	s.Close()
	sess.hub.Emit(model.Insight{ID: "late"})

	if len(c.send) != 0 {
		t.Errorf("queued after Close = %d, want 0", len(c.send))
	}
}
