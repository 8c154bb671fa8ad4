// Package relay forwards emitted insights to a remote insight log.
package relay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/resilience"
	"github.com/spikely/platform/internal/trace"
)

// Relay defaults
const (
	DefaultQueueSize   = 64
	DefaultPostTimeout = 5 * time.Second
)

// Payload is the log-insight request body.
type Payload struct {
	StreamerID         string   `json:"streamer_id"`
	SessionID          string   `json:"session_id"`
	Platform           string   `json:"platform"`
	ViewerDelta        int      `json:"viewer_delta"`
	ViewerCount        int      `json:"viewer_count"`
	PrevCount          int      `json:"prev_count"`
	Transcript         string   `json:"transcript"`
	TranscriptHash     string   `json:"transcript_hash"`
	Topic              string   `json:"topic"`
	Emotion            string   `json:"emotion"`
	EmotionalLabel     string   `json:"emotional_label"`
	NextMove           string   `json:"next_move"`
	EmotionScore       *float64 `json:"emotion_score,omitempty"`
	EmotionConfidence  *float64 `json:"emotion_confidence,omitempty"`
	AILatencyMs        int64    `json:"ai_latency_ms"`
	AISource           string   `json:"ai_source"`
	CorrelationQuality string   `json:"correlation_quality"`
}

type response struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// Config for the relay
type Config struct {
	URL        string
	StreamerID string
	Platform   string
	QueueSize  int
	Retry      resilience.RetryConfig
	Client     *http.Client
}

// Relay posts insights from a bounded queue on a single worker.
type Relay struct {
	cfg     Config
	queue   chan model.Insight
	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a relay. Call Start before enqueueing.
func New(cfg Config) *Relay {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultPostTimeout}
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = resilience.RelayRetryConfig()
	}
	return &Relay{
		cfg:   cfg,
		queue: make(chan model.Insight, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start runs the delivery worker until ctx is done or Stop is called.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

// Enqueue queues an insight without blocking. Returns false when the queue is full.
func (r *Relay) Enqueue(in model.Insight) bool {
	select {
	case r.queue <- in:
		return true
	default:
		r.dropped.Add(1)
		slog.Warn("relay queue full, dropping insight", "id", in.ID, "delta", in.Delta)
		return false
	}
}

// Add is Enqueue shaped as an emitter insight listener.
func (r *Relay) Add(in model.Insight) { r.Enqueue(in) }

// Stop cancels delivery and waits for the worker to exit. Queued insights are dropped.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			close(r.done)
			return
		}
		r.cancel()
		<-r.done
	})
}

// Stats is a snapshot of delivery counters.
type Stats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Queued  int   `json:"queued"`
}

// Stats returns delivery counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Sent:    r.sent.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Queued:  len(r.queue),
	}
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-r.queue:
			r.deliver(ctx, in)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, in model.Insight) {
	ctx, span := trace.StartSpan(ctx, "relay_post")
	defer span.End()
	span.SetAttr("insight_id", in.ID)
	log := trace.Logger(ctx)

	body, err := json.Marshal(r.payload(in))
	if err != nil {
		r.failed.Add(1)
		log.Error("relay encode failed", "error", err)
		return
	}

	var id string
	err = resilience.Retry(ctx, r.cfg.Retry, func() error {
		var postErr error
		id, postErr = r.post(ctx, body)
		return postErr
	})
	if err != nil {
		r.failed.Add(1)
		span.SetAttr("error", err.Error())
		log.Warn("relay delivery failed", "error", err, "insight_id", in.ID)
		return
	}
	r.sent.Add(1)
	log.Debug("insight relayed", "insight_id", in.ID, "remote_id", id)
}

func (r *Relay) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidArgument, "relay request")
	}
	req.Header.Set("Content-Type", "application/json")
	trace.InjectHeaders(ctx, req.Header)

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.Wrap(err, apperrors.CodeUnavailable, "relay unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.New(apperrors.CodeRateLimited, "relay rate limited")
	case resp.StatusCode >= 500:
		return "", apperrors.Newf(apperrors.CodeUnavailable, "relay %s", resp.Status)
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.Newf(apperrors.CodeInvalidArgument, "relay %s: %s", resp.Status, b)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeMalformedResponse, "relay decode")
	}
	if !out.Success {
		return "", apperrors.Newf(apperrors.CodeInvalidArgument, "relay rejected insight: %s", out.Error)
	}
	return out.ID, nil
}

func (r *Relay) payload(in model.Insight) Payload {
	emotion := in.Emotion
	if emotion == "" {
		emotion = "unknown"
	}
	p := Payload{
		StreamerID:         r.cfg.StreamerID,
		SessionID:          in.SessionID,
		Platform:           r.cfg.Platform,
		ViewerDelta:        in.Delta,
		ViewerCount:        in.ViewerCount,
		PrevCount:          in.PrevCount,
		Transcript:         in.SegmentText,
		TranscriptHash:     TranscriptHash(in.SegmentText),
		Topic:              string(in.Topic),
		Emotion:            emotion,
		EmotionalLabel:     in.EmotionalLabel,
		NextMove:           in.NextMove,
		AILatencyMs:        in.LatencyMs,
		AISource:           in.Source,
		CorrelationQuality: string(in.CorrelationQuality),
	}
	if in.Emotion != "" {
		p.EmotionScore = &in.EmotionScore
		p.EmotionConfidence = &in.EmotionConfidence
	}
	return p
}

// TranscriptHash returns the full hex sha256 of the segment text.
func TranscriptHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
