// Package correlator matches viewer-count deltas to recent transcript segments and
// turns each qualifying pairing into a single insight.
package correlator

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/spikely/platform/internal/diagnostics"
	"github.com/spikely/platform/internal/emitter"
	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/segment"
	"github.com/spikely/platform/internal/syncx"
	"github.com/spikely/platform/internal/tone"
	"github.com/spikely/platform/internal/trace"
)

// Reason names a gating rejection.
type Reason string

const (
	ReasonDeltaBelowMin     Reason = "deltaBelowMin"
	ReasonCooldown          Reason = "cooldown"
	ReasonNoSegmentInWindow Reason = "noSegmentInWindow"
	ReasonSegmentTooShort   Reason = "segmentTooShort"
	ReasonDuplicateInsight  Reason = "duplicateInsight"
	ReasonLowConfidence     Reason = "lowConfidence"
)

// ToneSource is the tone cache contract the correlator depends on.
type ToneSource interface {
	Request(text string, at time.Time, callback tone.Callback)
}

// Options tunes the correlator. Zero values take the defaults; a negative Cooldown
// disables the cooldown gate.
type Options struct {
	SessionID        string
	MinDelta         int
	Cooldown         time.Duration
	Window           time.Duration
	MinAvgConfidence float64
	ScoringDeadline  time.Duration
	DumpThreshold    int
	IdleDelay        time.Duration
	Diagnostics      *diagnostics.Counters
	Clock            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MinDelta <= 0 {
		o.MinDelta = DefaultMinDelta
	}
	if o.Cooldown < 0 {
		o.Cooldown = 0
	} else if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MinAvgConfidence <= 0 {
		o.MinAvgConfidence = DefaultMinAvgConfidence
	}
	if o.ScoringDeadline <= 0 {
		o.ScoringDeadline = DefaultScoringDeadline
	}
	if o.DumpThreshold <= 0 {
		o.DumpThreshold = DefaultDumpThreshold
	}
	if o.IdleDelay <= 0 {
		o.IdleDelay = DefaultIdleDelay
	}
	if o.Diagnostics == nil {
		o.Diagnostics = diagnostics.New()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type toneEntry struct {
	at         time.Time
	emotion    string
	delta      int
	isNegative bool
}

// job carries a gated delta through tone lookup and scoring.
type job struct {
	gen          uint64
	at           time.Time
	delta        int
	count        int
	seg          segment.Segment
	segHash      string
	topic        model.Topic
	contextLabel string
}

// Correlator owns the transcript, viewer and segment buffers for one session.
// All methods are safe for concurrent use; each ingest call reads, decides and
// writes under a single lock.
type Correlator struct {
	opts   Options
	tone   ToneSource
	scorer Scorer
	hub    *emitter.Hub
	diag   *diagnostics.Counters

	mu            sync.Mutex
	minDelta      int
	lines         *syncx.Ring[model.TranscriptLine]
	viewers       *syncx.Ring[model.ViewerSample]
	segments      *syncx.Ring[segment.Segment]
	toneHistory   []toneEntry
	linesSinceSeg int
	lastLineAt    time.Time
	lastInsightAt time.Time
	lastKey       string
	gen           uint64

	statusMu  sync.Mutex
	statusGen uint64
	idleTimer *time.Timer

	flights flights
	ctx     context.Context
	stop    context.CancelFunc

	// workMu orders scoring goroutine registration against Close.
	workMu sync.Mutex
	wg     sync.WaitGroup
}

// New creates a correlator. scorer may be nil, in which case every insight uses the fallback.
func New(toneSrc ToneSource, scorer Scorer, hub *emitter.Hub, opts Options) *Correlator {
	opts = opts.withDefaults()
	ctx, stop := context.WithCancel(trace.WithSession(context.Background(), opts.SessionID))
	return &Correlator{
		opts:     opts,
		tone:     toneSrc,
		scorer:   scorer,
		hub:      hub,
		diag:     opts.Diagnostics,
		minDelta: opts.MinDelta,
		lines:    syncx.NewRing[model.TranscriptLine](transcriptCap),
		viewers:  syncx.NewRing[model.ViewerSample](viewerCap),
		segments: syncx.NewRing[segment.Segment](segmentRingCap),
		ctx:      ctx,
		stop:     stop,
	}
}

// SetMinDelta changes the trigger threshold at runtime. Values below 1 are clamped to 1.
func (c *Correlator) SetMinDelta(v int) {
	if v < 1 {
		v = 1
	}
	c.mu.Lock()
	c.minDelta = v
	c.mu.Unlock()
	trace.Logger(c.ctx).Info("min delta updated", "min_delta", v)
}

// MinDelta returns the current trigger threshold.
func (c *Correlator) MinDelta() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minDelta
}

// Diagnostics returns the counters this correlator records into.
func (c *Correlator) Diagnostics() *diagnostics.Counters { return c.diag }

// PushTranscript ingests one transcript line. A zero timestamp is stamped with the clock.
func (c *Correlator) PushTranscript(line model.TranscriptLine) {
	if line.Timestamp.IsZero() {
		line.Timestamp = c.opts.Clock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines.Push(line)
	c.lastLineAt = line.Timestamp
	c.linesSinceSeg++
	c.setStatus(model.StatusCollecting, model.StatusMeta{})

	if c.linesSinceSeg >= rebuildEvery {
		c.rebuildSegments()
	}
}

// PushViewer ingests one viewer sample and, when the delta qualifies, starts building an insight.
func (c *Correlator) PushViewer(sample model.ViewerSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = c.opts.Clock()
	}

	j, ok := c.gate(sample)
	if !ok {
		return
	}

	c.tone.Request(j.seg.Text, j.seg.Timestamp, func(res model.ToneResult) {
		c.workMu.Lock()
		defer c.workMu.Unlock()
		if c.ctx.Err() != nil {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.score(j, res)
		}()
	})
}

func (c *Correlator) gate(sample model.ViewerSample) (job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.viewers.Push(sample)
	if c.viewers.Len() < 2 {
		return job{}, false
	}
	prev := c.viewers.At(-2)
	delta := sample.Count - prev.Count
	now := sample.Timestamp
	log := trace.Logger(c.ctx)

	if abs(delta) < c.minDelta {
		c.reject(ReasonDeltaBelowMin, model.StatusIdle, "delta", delta, "min_delta", c.minDelta)
		return job{}, false
	}
	if c.opts.Cooldown > 0 && !c.lastInsightAt.IsZero() && now.Sub(c.lastInsightAt) < c.opts.Cooldown {
		c.reject(ReasonCooldown, model.StatusIdle, "since_last_ms", now.Sub(c.lastInsightAt).Milliseconds())
		return job{}, false
	}

	log.Debug("delta detected", "before", prev.Count, "after", sample.Count, "delta", delta)
	c.setStatus(model.StatusCorrelating, model.StatusMeta{})

	if c.linesSinceSeg > 0 {
		c.rebuildSegments()
	}
	seg, ok := c.findRecentSegment(now)
	if !ok {
		c.reject(ReasonNoSegmentInWindow, model.StatusFailed, "segments", c.segments.Len(), "lines", c.lines.Len())
		return job{}, false
	}
	if words := segment.CountWords(seg.Text); words < segment.MinWords {
		c.reject(ReasonSegmentTooShort, model.StatusFailed, "words", words)
		return job{}, false
	}
	segHash := segment.HashText(seg.Text)
	key := segHash + strconv.Itoa(delta)
	if key == c.lastKey {
		c.reject(ReasonDuplicateInsight, model.StatusFailed, "segment_hash", segHash)
		return job{}, false
	}
	if !c.hasValidConfidence(seg) {
		c.reject(ReasonLowConfidence, model.StatusFailed, "threshold", c.opts.MinAvgConfidence)
		return job{}, false
	}

	c.lastInsightAt = now
	c.lastKey = key
	c.gen++
	c.flights.supersede(c.gen)
	topic := ClassifyTopic(seg.Text)

	log.Debug("correlated", "delta", delta, "topic", topic, "segment_t", seg.Timestamp)
	return job{
		gen:          c.gen,
		at:           now,
		delta:        delta,
		count:        sample.Count,
		seg:          seg,
		segHash:      segHash,
		topic:        topic,
		contextLabel: ContextLabel(delta, topic),
	}, true
}

// reject records a gating rejection. Must hold c.mu.
func (c *Correlator) reject(reason Reason, status model.EngineStatus, attrs ...any) {
	c.diag.Rejected(string(reason))
	trace.Logger(c.ctx).Debug("correlation rejected", append([]any{"reason", reason}, attrs...)...)
	c.setStatus(status, model.StatusMeta{Reason: string(reason)})
	if status != model.StatusIdle {
		c.scheduleIdle()
	}
}

// rebuildSegments re-runs the segmenter over the newest lines and merges new segments
// into the ring. Must hold c.mu.
func (c *Correlator) rebuildSegments() {
	c.linesSinceSeg = 0
	existing := c.segments.Items()
	for _, seg := range segment.Build(c.lines.Last(rebuildWindow)) {
		dup := false
		for _, s := range existing {
			if absDur(s.Timestamp.Sub(seg.Timestamp)) < segmentDedupeDt && s.Text == seg.Text {
				dup = true
				break
			}
		}
		if !dup {
			c.segments.Push(seg)
			existing = append(existing, seg)
		}
	}
}

// findRecentSegment returns the newest segment inside the correlation window. Must hold c.mu.
func (c *Correlator) findRecentSegment(now time.Time) (segment.Segment, bool) {
	var best segment.Segment
	found := false
	for _, s := range c.segments.Items() {
		if now.Sub(s.Timestamp) > c.opts.Window {
			continue
		}
		if !found || !s.Timestamp.Before(best.Timestamp) {
			best = s
			found = true
		}
	}
	return best, found
}

// hasValidConfidence averages the confidence of lines that plausibly contributed to seg.
// Passes when none of them carry confidence data. Must hold c.mu.
func (c *Correlator) hasValidConfidence(seg segment.Segment) bool {
	var sum float64
	n := 0
	for _, l := range c.lines.Items() {
		if absDur(l.Timestamp.Sub(seg.Timestamp)) >= confidenceDt || !l.HasConfidence() {
			continue
		}
		prefix := l.Text
		if r := []rune(prefix); len(r) > confidencePrefix {
			prefix = string(r[:confidencePrefix])
		}
		if !strings.Contains(seg.Text, prefix) {
			continue
		}
		sum += l.Conf()
		n++
	}
	if n == 0 {
		return true
	}
	return sum/float64(n) >= c.opts.MinAvgConfidence
}

// score runs inside the tone callback: record tone history, call the scorer under
// the single-flight deadline, fall back when needed and emit.
func (c *Correlator) score(j job, emotion model.ToneResult) {
	ctx, span := trace.StartSpan(c.ctx, "correlate_score")
	defer span.End()
	span.SetAttr("delta", j.delta)
	span.SetAttr("topic", string(j.topic))
	log := trace.Logger(ctx)

	req := c.buildRequest(j, emotion)

	c.setStatus(model.StatusAICalling, model.StatusMeta{})
	outcome := c.call(ctx, j.gen, req)
	span.SetAttr("outcome", outcome.Kind.String())

	if outcome.Kind == OutcomeSuperseded {
		log.Debug("scoring call superseded, discarding", "delta", j.delta)
		return
	}

	label, move := outcome.Label, outcome.Move
	quality, source := model.QualityAIEnhanced, model.SourceAI
	if outcome.Kind != OutcomeOK {
		c.setStatus(model.StatusAIFallback, model.StatusMeta{Reason: outcome.Kind.String()})
		log.Warn("scoring unavailable, using fallback", "outcome", outcome.Kind.String(), "error", outcome.Err)
		label, move = Fallback(j.topic, j.delta, c.opts.DumpThreshold)
		quality, source = model.QualityFallback, model.SourceFallback
	}

	label, move, replaced := Sanitize(label, move, j.seg.Text, j.delta)
	if len(replaced) > 0 {
		c.diag.LeakReplaced()
		log.Warn("output echoed transcript, replaced", "fields", replaced, "source", source)
	}
	label = Limit(label, maxLabelWords, maxOutputLen)
	move = Limit(move, maxMoveWords, maxOutputLen)

	insight := model.Insight{
		ID:                 ulid.Make().String(),
		SessionID:          c.opts.SessionID,
		Timestamp:          j.at,
		Delta:              j.delta,
		ViewerCount:        j.count,
		PrevCount:          j.count - j.delta,
		SegmentText:        j.seg.Text,
		Topic:              j.topic,
		ContextLabel:       j.contextLabel,
		Emotion:            emotion.Emotion,
		EmotionScore:       emotion.Score,
		EmotionConfidence:  emotion.Confidence,
		SegmentHash:        j.segHash,
		EmotionalLabel:     label,
		NextMove:           move,
		CorrelationQuality: quality,
		Source:             source,
		LatencyMs:          outcome.Latency.Milliseconds(),
	}

	c.statusMu.Lock()
	if c.flights.stale(j.gen) {
		c.statusMu.Unlock()
		log.Debug("insight superseded before emit, discarding", "delta", j.delta)
		return
	}
	c.hub.Emit(insight)
	c.diag.InsightEmitted(source)
	c.setStatusLocked(model.StatusSuccess, model.StatusMeta{Source: source, LatencyMs: insight.LatencyMs})
	c.scheduleIdleLocked()
	c.statusMu.Unlock()

	log.Info("insight emitted", "delta", j.delta, "topic", j.topic, "source", source,
		"latency_ms", insight.LatencyMs, "label", label)
}

func (c *Correlator) buildRequest(j job, emotion model.ToneResult) model.ScoreRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.toneHistory = append(c.toneHistory, toneEntry{
		at:         j.at,
		emotion:    emotion.Emotion,
		delta:      j.delta,
		isNegative: j.delta < 0,
	})
	cutoff := j.at.Add(-toneHistoryWindow)
	kept := c.toneHistory[:0]
	for _, h := range c.toneHistory {
		if !h.at.Before(cutoff) {
			kept = append(kept, h)
		}
	}
	c.toneHistory = kept

	recent := c.toneHistory
	if len(recent) > recentHistoryLen {
		recent = recent[len(recent)-recentHistoryLen:]
	}
	history := make([]model.HistoryEntry, len(recent))
	for i, h := range recent {
		history[i] = model.HistoryEntry{Delta: h.delta, Emotion: h.emotion}
	}

	var silence int64
	if !c.lastLineAt.IsZero() && j.at.After(c.lastLineAt) {
		silence = j.at.Sub(c.lastLineAt).Milliseconds()
	}

	return model.ScoreRequest{
		Transcript:    lastWords(j.seg.Text, maxTranscriptWords),
		ViewerDelta:   j.delta,
		ViewerCount:   j.count,
		PrevCount:     j.count - j.delta,
		TopicHint:     j.topic,
		Emotion:       emotion.Emotion,
		SilenceMs:     silence,
		RecentHistory: history,
	}
}

// call issues the scoring request as the newest flight and classifies the result.
func (c *Correlator) call(ctx context.Context, gen uint64, req model.ScoreRequest) Outcome {
	if c.scorer == nil {
		return Outcome{Kind: OutcomeTransportError, Err: errNoScorer}
	}

	fl := c.flights.begin(ctx, gen, c.opts.ScoringDeadline)
	if fl == nil {
		c.diag.CallAborted()
		return Outcome{Kind: OutcomeSuperseded, Err: errSuperseded}
	}

	c.diag.CallStarted()
	start := time.Now()
	resp, err := c.scorer.GenerateInsight(fl.ctx, req)
	latency := time.Since(start)

	outcome := classify(fl, resp, err)
	if !c.flights.finish(fl) {
		outcome = Outcome{Kind: OutcomeSuperseded, Err: errSuperseded}
	}
	outcome.Latency = latency

	switch outcome.Kind {
	case OutcomeOK:
		c.diag.CallSucceeded(latency)
	case OutcomeTimeout, OutcomeSuperseded:
		c.diag.CallAborted()
	default:
		c.diag.CallFailed()
	}
	return outcome
}

// setStatus broadcasts a transition.
func (c *Correlator) setStatus(status model.EngineStatus, meta model.StatusMeta) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.setStatusLocked(status, meta)
}

func (c *Correlator) setStatusLocked(status model.EngineStatus, meta model.StatusMeta) {
	c.statusGen++
	c.hub.EmitEngineStatus(status, meta)
}

func (c *Correlator) scheduleIdle() {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.scheduleIdleLocked()
}

// scheduleIdleLocked returns the engine to IDLE after the display delay unless
// another transition happens first.
func (c *Correlator) scheduleIdleLocked() {
	gen := c.statusGen
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.opts.IdleDelay, func() {
		c.statusMu.Lock()
		defer c.statusMu.Unlock()
		if c.statusGen == gen {
			c.setStatusLocked(model.StatusIdle, model.StatusMeta{})
		}
	})
}

// Reset clears every buffer, the cooldown and dedupe state, and cancels any outstanding call.
func (c *Correlator) Reset() {
	c.flights.cancel()

	c.mu.Lock()
	c.lines.Reset()
	c.viewers.Reset()
	c.segments.Reset()
	c.toneHistory = nil
	c.linesSinceSeg = 0
	c.lastLineAt = time.Time{}
	c.lastInsightAt = time.Time{}
	c.lastKey = ""
	c.minDelta = c.opts.MinDelta
	c.mu.Unlock()

	c.statusMu.Lock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.setStatusLocked(model.StatusIdle, model.StatusMeta{})
	c.statusMu.Unlock()
}

// Close cancels outstanding work and waits for in-progress scoring to finish.
func (c *Correlator) Close() {
	c.workMu.Lock()
	c.stop()
	c.workMu.Unlock()
	c.flights.cancel()
	c.wg.Wait()

	c.statusMu.Lock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.statusMu.Unlock()
}

// Segments returns a copy of the segment ring, oldest first.
func (c *Correlator) Segments() []segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segments.Items()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
