package replay

import (
	"context"
	"sync"
	"time"

	"github.com/spikely/platform/internal/correlator"
	"github.com/spikely/platform/internal/diagnostics"
	apperrors "github.com/spikely/platform/internal/errors"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/orchestrator"
	"github.com/spikely/platform/internal/tone"
	"github.com/spikely/platform/internal/trace"
)

// Options configures a replay run. A nil Scorer always takes the fallback path.
type Options struct {
	Scorer        correlator.Scorer
	Classifier    tone.Classifier
	History       orchestrator.History
	SettleTimeout time.Duration
}

// Result is what one replay produced.
type Result struct {
	Scenario    string               `json:"scenario"`
	SessionID   string               `json:"sessionId"`
	Insights    []model.Insight      `json:"insights"`
	Diagnostics diagnostics.Snapshot `json:"diagnostics"`
}

// Offline is a scorer with no backend. Every call is unavailable.
type Offline struct{}

func (Offline) GenerateInsight(context.Context, model.ScoreRequest) (model.ScoreResponse, error) {
	return model.ScoreResponse{}, apperrors.New(apperrors.CodeUnavailable, "offline replay has no scoring backend")
}

// Run feeds every event into a fresh session in order and collects the insights it emits.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	if opts.Scorer == nil {
		opts.Scorer = Offline{}
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}

	ctx, span := trace.StartSpan(ctx, "replay")
	defer span.End()
	span.SetAttr("scenario", sc.Name)
	span.SetAttr("events", len(sc.Events))
	log := trace.Logger(ctx)

	// Replay time only moves with the events.
	var clockMu sync.Mutex
	now := sc.Start
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	mgr := orchestrator.New(orchestrator.Config{
		Classifier: opts.Classifier,
		Scorer:     opts.Scorer,
		History:    opts.History,
		Correlator: correlator.Options{
			MinDelta:  sc.MinDelta,
			IdleDelay: replayIdleDelay,
			Clock:     clock,
		},
		Tone: tone.Config{CallDelay: -1},
	})

	var mu sync.Mutex
	var insights []model.Insight
	unsub := mgr.Hub().OnInsight(func(in model.Insight) {
		mu.Lock()
		insights = append(insights, in)
		mu.Unlock()
	})
	defer unsub()

	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	defer mgr.Stop()

	for _, e := range sc.Events {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCancelled, "replay interrupted")
		}
		at := sc.Time(e)
		clockMu.Lock()
		now = at
		clockMu.Unlock()

		if !e.IsViewer() {
			mgr.PushTranscript(model.TranscriptLine{Timestamp: at, Text: e.Text, Confidence: e.Conf})
			continue
		}
		mgr.PushViewer(model.ViewerSample{Timestamp: at, Count: *e.Viewers})
		if !settle(ctx, mgr, opts.SettleTimeout) {
			log.Warn("session did not settle", "at_ms", e.At, "status", mgr.Status().Status)
		}
	}

	// Flush the batcher before reporting.
	mgr.Stop()

	mu.Lock()
	defer mu.Unlock()
	span.SetAttr("insights", len(insights))
	return &Result{
		Scenario:    sc.Name,
		SessionID:   mgr.ID(),
		Insights:    insights,
		Diagnostics: mgr.Diagnostics(),
	}, nil
}

// settle waits until no correlation is in flight.
func settle(ctx context.Context, mgr *orchestrator.Manager, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !busy(mgr.Status().Status) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(settlePoll)
	}
}

func busy(s model.EngineStatus) bool {
	switch s {
	case model.StatusCorrelating, model.StatusAICalling, model.StatusAIFallback:
		return true
	}
	return false
}
