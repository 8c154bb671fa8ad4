package store

import (
	"context"
	"sync"
	"time"

	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/trace"
)

// Saver persists a batch of insights.
type Saver interface {
	SaveInsights(ctx context.Context, insights []model.Insight) error
}

// Batcher accumulates insights and flushes them by size or after a quiet delay.
type Batcher struct {
	saver      Saver
	maxSize    int
	flushDelay time.Duration
	mu         sync.Mutex
	items      []model.Insight
	timer      *time.Timer
	stopped    bool
	wg         sync.WaitGroup
}

// NewBatcher creates an insight batcher.
func NewBatcher(saver Saver, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultBatcherMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultBatcherFlushDelay
	}
	return &Batcher{
		saver:      saver,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		items:      make([]model.Insight, 0, maxSize),
	}
}

// Add queues an insight. Its signature matches an emitter insight listener.
func (b *Batcher) Add(in model.Insight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.items = append(b.items, in)

	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	// Start or reset timer for delayed flush
	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

// Pending returns the number of queued insights.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// take detaches the pending items and stops the delay timer. Caller holds mu.
func (b *Batcher) take() []model.Insight {
	if len(b.items) == 0 {
		return nil
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = make([]model.Insight, 0, b.maxSize)
	return items
}

func (b *Batcher) flushLocked() {
	items := b.take()
	if len(items) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		ctx, span := trace.StartSpan(ctx, "insight_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		log := trace.Logger(ctx)
		if err := b.saver.SaveInsights(ctx, items); err != nil {
			span.SetAttr("error", err.Error())
			log.Warn("insight batch store failed", "error", err, "count", len(items))
			return
		}
		log.Debug("insight batch stored", "count", len(items))
	}()
}

// Flush forces immediate flush of pending items.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Sync writes pending items on the caller's goroutine.
func (b *Batcher) Sync(ctx context.Context) error {
	b.mu.Lock()
	items := b.take()
	b.mu.Unlock()
	if len(items) == 0 {
		return nil
	}
	return b.saver.SaveInsights(ctx, items)
}

// Stop flushes remaining items and waits for in-flight writes.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}
