package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/trace"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		conn: conn,
		send: make(chan any, SendBufferSize),
		rl:   newRateLimiter(RateLimitMessages, RateLimitWindow),
	}
	// Current status first so a new client does not wait for the next transition.
	c.send <- statusMessage(s.sess.Status())

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	go s.writeLoop(ctx, c)

	ip := remoteIP(r)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.rl.allow() || !s.ips.allow(ip) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.enqueue(ErrorMessage{Type: TypeError, Message: "rate limit exceeded"})
			continue
		}

		if err := s.handleMessage(ctx, msg); err != nil {
			log.Debug("rejected websocket message", "error", err)
			c.enqueue(ErrorMessage{Type: TypeError, Message: err.Error()})
		}
	}
}

// handleMessage dispatches one inbound message by type. The message's trace_id, when present, continues that trace.
func (s *Server) handleMessage(ctx context.Context, raw json.RawMessage) error {
	var base Message
	if err := json.Unmarshal(raw, &base); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid message")
	}

	if tc, ok := trace.ExtractFromJSON(raw); ok {
		ctx = trace.WithContext(ctx, tc)
	} else {
		ctx, _ = trace.EnsureContext(ctx)
	}

	switch base.Type {
	case TypeTranscript:
		var m TranscriptMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		return s.applyTranscript(ctx, m)
	case TypeViewerCount:
		var m ViewerCountMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		return s.applyViewers(ctx, m)
	case TypeThresholdUpdate:
		var m ThresholdMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		return s.applyThreshold(ctx, m)
	default:
		return apperrors.Newf(apperrors.CodeInvalidArgument, "unknown message type %q", base.Type)
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

// enqueue never blocks: listeners calling it run on the correlator's emit path.
func (c *client) enqueue(msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if !c.enqueue(msg) {
			trace.Logger(context.Background()).Warn("websocket client too slow, dropping message")
		}
	}
}
