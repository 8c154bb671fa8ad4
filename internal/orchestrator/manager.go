package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spikely/platform/internal/correlator"
	"github.com/spikely/platform/internal/diagnostics"
	"github.com/spikely/platform/internal/emitter"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/relay"
	"github.com/spikely/platform/internal/store"
	"github.com/spikely/platform/internal/syncx"
	"github.com/spikely/platform/internal/tone"
	"github.com/spikely/platform/internal/trace"
)

// History is the persisted insight log.
type History interface {
	store.Saver
	ListInsights(ctx context.Context, limit int) ([]model.Insight, error)
}

// Config assembles a session. Nil collaborators and sinks are skipped.
type Config struct {
	Classifier tone.Classifier
	Scorer     correlator.Scorer
	History    History
	Relay      *relay.Relay

	Correlator    correlator.Options
	Tone          tone.Config
	StatsInterval time.Duration
}

// Manager owns one correlation session
type Manager struct {
	id   string
	hub  *emitter.Hub
	diag *diagnostics.Counters
	tone *tone.Cache
	corr *correlator.Correlator

	history History
	batcher *store.Batcher
	relay   *relay.Relay

	recentMu sync.Mutex
	recent   *syncx.Ring[model.Insight]

	unsubs   []func()
	cancel   context.CancelFunc
	stopOnce sync.Once
	interval time.Duration
}

// New builds a session with a fresh id and wires its sinks to the hub.
func New(cfg Config) *Manager {
	m := &Manager{
		id:       uuid.NewString(),
		hub:      emitter.New(),
		diag:     diagnostics.New(),
		history:  cfg.History,
		relay:    cfg.Relay,
		recent:   syncx.NewRing[model.Insight](RecentInsightsCap),
		interval: cfg.StatsInterval,
	}
	if m.interval <= 0 {
		m.interval = StatsLogInterval
	}

	var toneSrc correlator.ToneSource = tone.Offline{}
	if cfg.Classifier != nil {
		m.tone = tone.NewCache(cfg.Classifier, cfg.Tone)
		toneSrc = m.tone
	}

	opts := cfg.Correlator
	opts.SessionID = m.id
	opts.Diagnostics = m.diag
	m.corr = correlator.New(toneSrc, cfg.Scorer, m.hub, opts)

	m.unsubs = append(m.unsubs, m.hub.OnInsight(m.remember))
	if m.history != nil {
		m.batcher = store.NewBatcher(m.history, store.DefaultBatcherMaxSize, store.DefaultBatcherFlushDelay)
		m.unsubs = append(m.unsubs, m.hub.OnInsight(m.batcher.Add))
	}
	if m.relay != nil {
		m.unsubs = append(m.unsubs, m.hub.OnInsight(m.relay.Add))
	}
	return m
}

// ID returns the session id stamped on every insight.
func (m *Manager) ID() string { return m.id }

// Hub returns the session's event hub for transport subscribers.
func (m *Manager) Hub() *emitter.Hub { return m.hub }

// Start begins background work: relay delivery and the periodic stats log.
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(trace.WithSession(ctx, m.id))
	if m.relay != nil {
		m.relay.Start(ctx)
	}
	go m.diag.Run(ctx, m.interval)
	trace.Logger(ctx).Info("session started",
		"min_delta", m.corr.MinDelta(), "history", m.history != nil, "relay", m.relay != nil)
	return nil
}

// Stop drains scoring, flushes sinks and detaches listeners. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.corr.Close()
		if m.tone != nil {
			m.tone.Stop()
		}
		for _, unsub := range m.unsubs {
			unsub()
		}
		if m.batcher != nil {
			m.batcher.Stop()
		}
		if m.relay != nil {
			m.relay.Stop()
		}
		if m.cancel != nil {
			m.cancel()
		}
	})
}

// PushTranscript forwards a transcript line to the correlator.
func (m *Manager) PushTranscript(line model.TranscriptLine) {
	m.corr.PushTranscript(line)
}

// PushViewer forwards a viewer sample to the correlator.
func (m *Manager) PushViewer(sample model.ViewerSample) {
	m.corr.PushViewer(sample)
}

// SetMinDelta changes the trigger threshold at runtime.
func (m *Manager) SetMinDelta(v int) {
	m.corr.SetMinDelta(v)
}

// MinDelta returns the current trigger threshold.
func (m *Manager) MinDelta() int { return m.corr.MinDelta() }

// Status returns the last broadcast engine status.
func (m *Manager) Status() model.StatusEvent { return m.hub.Status() }

// Diagnostics returns a snapshot of the session counters.
func (m *Manager) Diagnostics() diagnostics.Snapshot { return m.diag.Snapshot() }

// Reset clears correlator state and the tone cache.
func (m *Manager) Reset() {
	m.corr.Reset()
	if m.tone != nil {
		m.tone.Reset()
	}
	m.recentMu.Lock()
	m.recent.Reset()
	m.recentMu.Unlock()
}

// Insights returns up to limit recent insights of this session, newest first.
func (m *Manager) Insights(limit int) []model.Insight {
	m.recentMu.Lock()
	items := m.recent.Items()
	m.recentMu.Unlock()

	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]model.Insight, 0, limit)
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}

// History returns persisted insights across sessions, newest first. Pending batches are flushed first.
func (m *Manager) History(ctx context.Context, limit int) ([]model.Insight, error) {
	if m.history == nil {
		return m.Insights(limit), nil
	}
	if err := m.batcher.Sync(ctx); err != nil {
		trace.Logger(ctx).Warn("pending insights not stored before listing", "error", err)
	}
	return m.history.ListInsights(ctx, limit)
}

func (m *Manager) remember(in model.Insight) {
	m.recentMu.Lock()
	m.recent.Push(in)
	m.recentMu.Unlock()
}
