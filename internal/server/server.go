package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/spikely/platform/internal/diagnostics"
	"github.com/spikely/platform/internal/emitter"
	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/trace"
)

// Session is the correlation session the server drives.
type Session interface {
	PushTranscript(model.TranscriptLine)
	PushViewer(model.ViewerSample)
	SetMinDelta(int)
	MinDelta() int
	Status() model.StatusEvent
	Diagnostics() diagnostics.Snapshot
	History(ctx context.Context, limit int) ([]model.Insight, error)
	Hub() *emitter.Hub
}

// FeedbackStore persists streamer feedback on emitted insights.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb model.Feedback) (model.Feedback, error)
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	sess     Session
	feedback FeedbackStore
	ips     *ipLimiter
	mu      sync.RWMutex
	clients map[*client]struct{}
	unsubs  []func()
	stop    chan struct{}
	once    sync.Once
}

// New creates a server and subscribes it to the session's hub.
func New(sess Session) *Server {
	s := &Server{
		sess:    sess,
		ips:     newIPLimiter(),
		clients: make(map[*client]struct{}),
		stop:    make(chan struct{}),
	}

	hub := sess.Hub()
	s.unsubs = append(s.unsubs,
		hub.OnInsight(func(in model.Insight) {
			s.broadcast(InsightMessage{Type: TypeInsight, Insight: in})
		}),
		hub.OnEngineStatus(func(ev model.StatusEvent) {
			s.broadcast(statusMessage(ev))
		}),
	)

	go s.purgeLoop()
	return s
}

// WithFeedback enables POST /api/feedback. Call before Handler.
func (s *Server) WithFeedback(fs FeedbackStore) *Server {
	s.feedback = fs
	return s
}

// Close detaches from the hub and stops background work. Open sockets end with the HTTP server.
func (s *Server) Close() {
	s.once.Do(func() {
		for _, unsub := range s.unsubs {
			unsub()
		}
		close(s.stop)
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("POST /api/transcript", s.handleTranscript)
	mux.HandleFunc("POST /api/viewers", s.handleViewers)
	mux.HandleFunc("POST /api/threshold", s.handleThreshold)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) purgeLoop() {
	ticker := time.NewTicker(IPRateLimitCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if n := s.ips.purge(now, IPRateLimitEntryTTL); n > 0 {
				slog.Debug("purged idle rate limit entries", "count", n)
			}
		}
	}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var msg TranscriptMessage
	if !decode(w, r, &msg) {
		return
	}
	if err := s.applyTranscript(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleViewers(w http.ResponseWriter, r *http.Request) {
	var msg ViewerCountMessage
	if !decode(w, r, &msg) {
		return
	}
	if err := s.applyViewers(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	var msg ThresholdMessage
	if !decode(w, r, &msg) {
		return
	}
	if err := s.applyThreshold(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"minDelta": s.sess.MinDelta()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	ev := s.sess.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   ev.Status,
		Meta:     ev.Meta,
		At:       ev.At,
		MinDelta: s.sess.MinDelta(),
		Clients:  s.clientCount(),
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Diagnostics())
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	limit := DefaultInsightsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}
	insights, err := s.sess.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if insights == nil {
		insights = []model.Insight{}
	}
	writeJSON(w, http.StatusOK, insights)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "feedback storage is not configured"))
		return
	}
	var fb model.Feedback
	if !decode(w, r, &fb) {
		return
	}
	if strings.TrimSpace(fb.InsightID) == "" {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "insight_id is required"))
		return
	}
	if fb.Rating != nil && (*fb.Rating < MinFeedbackRating || *fb.Rating > MaxFeedbackRating) {
		writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument,
			"rating must be within [%d,%d], got %d", MinFeedbackRating, MaxFeedbackRating, *fb.Rating))
		return
	}
	saved, err := s.feedback.SaveFeedback(r.Context(), fb)
	if err != nil {
		trace.Logger(r.Context()).Error("save feedback failed", "insight_id", fb.InsightID, "error", err)
		writeError(w, err)
		return
	}
	trace.Logger(r.Context()).Info("feedback recorded", "insight_id", saved.InsightID, "id", saved.ID)
	writeJSON(w, http.StatusOK, FeedbackResponse{Success: true, ID: saved.ID, Feedback: saved})
}

// applyTranscript validates and forwards a transcript message.
func (s *Server) applyTranscript(ctx context.Context, msg TranscriptMessage) error {
	if msg.Text == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "text is required")
	}
	if msg.Confidence != nil && (*msg.Confidence < 0 || *msg.Confidence > 1) {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "confidence must be within [0,1], got %v", *msg.Confidence)
	}
	s.sess.PushTranscript(model.TranscriptLine{
		Timestamp:  fromMillis(msg.T),
		Text:       msg.Text,
		Confidence: msg.Confidence,
	})
	trace.Logger(ctx).Debug("transcript received", "chars", len(msg.Text))
	return nil
}

func (s *Server) applyViewers(ctx context.Context, msg ViewerCountMessage) error {
	if msg.Count == nil || *msg.Count < 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "count must be a non-negative integer")
	}
	s.sess.PushViewer(model.ViewerSample{Timestamp: fromMillis(msg.T), Count: *msg.Count})
	trace.Logger(ctx).Debug("viewer count received", "count", *msg.Count)
	return nil
}

func (s *Server) applyThreshold(ctx context.Context, msg ThresholdMessage) error {
	if msg.MinDelta == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "minDelta is required")
	}
	s.sess.SetMinDelta(*msg.MinDelta)
	trace.Logger(ctx).Info("threshold updated", "min_delta", s.sess.MinDelta())
	return nil
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func fromMillis(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an AppError code onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeRateLimited:
		status = http.StatusTooManyRequests
	case apperrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, status, ErrorMessage{Type: TypeError, Message: msg})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// client is one websocket connection with its own ordered outbound queue.
type client struct {
	conn *websocket.Conn
	send chan any
	rl   *rateLimiter
}
