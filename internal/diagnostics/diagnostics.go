// Package diagnostics keeps running counters for the correlation engine
package diagnostics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spikely/platform/internal/syncx"
)

const (
	latencySamples     = 100
	DefaultLogInterval = 30 * time.Second
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	CallsStarted   int64            `json:"callsStarted"`
	CallsAborted   int64            `json:"callsAborted"`
	CallsSucceeded int64            `json:"callsSucceeded"`
	CallsFailed    int64            `json:"callsFailed"`
	Rejections     map[string]int64 `json:"rejections"`
	Insights       map[string]int64 `json:"insights"`
	Leaks          int64            `json:"leaks"`
	AvgLatencyMs   float64          `json:"avgLatencyMs"`
	LatencySamples int              `json:"latencySamples"`
}

// Counters is safe for concurrent use.
type Counters struct {
	started   atomic.Int64
	aborted   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	leaks     atomic.Int64

	mu         sync.Mutex
	rejections map[string]int64
	insights   map[string]int64
	latencies  *syncx.Ring[int64]
}

// New creates zeroed counters.
func New() *Counters {
	return &Counters{
		rejections: make(map[string]int64),
		insights:   make(map[string]int64),
		latencies:  syncx.NewRing[int64](latencySamples),
	}
}

func (c *Counters) CallStarted() { c.started.Add(1) }

// CallAborted counts a scoring call that was cancelled, by deadline or by a newer call.
func (c *Counters) CallAborted() { c.aborted.Add(1) }

func (c *Counters) CallFailed() { c.failed.Add(1) }

// CallSucceeded counts a well-formed scoring response and records its latency.
func (c *Counters) CallSucceeded(latency time.Duration) {
	c.succeeded.Add(1)
	c.mu.Lock()
	c.latencies.Push(latency.Milliseconds())
	c.mu.Unlock()
}

func (c *Counters) LeakReplaced() { c.leaks.Add(1) }

// Rejected counts a gating rejection by reason.
func (c *Counters) Rejected(reason string) {
	c.mu.Lock()
	c.rejections[reason]++
	c.mu.Unlock()
}

// InsightEmitted counts an emitted insight by source.
func (c *Counters) InsightEmitted(source string) {
	c.mu.Lock()
	c.insights[source]++
	c.mu.Unlock()
}

// Snapshot copies the current counters.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		CallsStarted:   c.started.Load(),
		CallsAborted:   c.aborted.Load(),
		CallsSucceeded: c.succeeded.Load(),
		CallsFailed:    c.failed.Load(),
		Leaks:          c.leaks.Load(),
		Rejections:     make(map[string]int64),
		Insights:       make(map[string]int64),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.rejections {
		s.Rejections[k] = v
	}
	for k, v := range c.insights {
		s.Insights[k] = v
	}
	samples := c.latencies.Items()
	s.LatencySamples = len(samples)
	if len(samples) > 0 {
		var sum int64
		for _, v := range samples {
			sum += v
		}
		s.AvgLatencyMs = float64(sum) / float64(len(samples))
	}
	return s
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.started.Store(0)
	c.aborted.Store(0)
	c.succeeded.Store(0)
	c.failed.Store(0)
	c.leaks.Store(0)

	c.mu.Lock()
	c.rejections = make(map[string]int64)
	c.insights = make(map[string]int64)
	c.latencies.Reset()
	c.mu.Unlock()
}

// Run logs a stats line every interval while scoring calls have been made, until ctx is done.
func (c *Counters) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Snapshot()
			if s.CallsStarted == 0 {
				continue
			}
			slog.Info("correlation stats",
				"started", s.CallsStarted,
				"succeeded", s.CallsSucceeded,
				"aborted", s.CallsAborted,
				"failed", s.CallsFailed,
				"avg_latency_ms", s.AvgLatencyMs,
				"leaks", s.Leaks)
		}
	}
}
