// Package emitter fans finished insights and engine status out to subscribers
package emitter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/syncx"
)

// InsightListener receives every emitted insight.
type InsightListener func(model.Insight)

// StatusListener receives every status transition.
type StatusListener func(model.StatusEvent)

type insightSub struct {
	id int
	fn InsightListener
}

type statusSub struct {
	id int
	fn StatusListener
}

// Hub is a synchronous multi-subscriber fan-out. Listeners run in registration order.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	insights []insightSub
	statuses []statusSub

	current *syncx.Guard[model.StatusEvent]
	now     func() time.Time
}

// New creates a hub whose status starts at IDLE.
func New() *Hub {
	return &Hub{
		current: syncx.NewGuard(model.StatusEvent{Status: model.StatusIdle}),
		now:     time.Now,
	}
}

// OnInsight registers fn and returns a func that removes it.
func (h *Hub) OnInsight(fn InsightListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.insights = append(h.insights, insightSub{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.insights {
			if s.id == id {
				h.insights = append(h.insights[:i:i], h.insights[i+1:]...)
				return
			}
		}
	}
}

// OnEngineStatus registers fn and returns a func that removes it.
func (h *Hub) OnEngineStatus(fn StatusListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.statuses = append(h.statuses, statusSub{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.statuses {
			if s.id == id {
				h.statuses = append(h.statuses[:i:i], h.statuses[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers an insight to every insight listener.
func (h *Hub) Emit(in model.Insight) {
	h.mu.RLock()
	subs := make([]insightSub, len(h.insights))
	copy(subs, h.insights)
	h.mu.RUnlock()

	for _, s := range subs {
		safeCall("insight", func() { s.fn(in) })
	}
}

// EmitEngineStatus records the new status and delivers it to every status listener.
func (h *Hub) EmitEngineStatus(status model.EngineStatus, meta model.StatusMeta) {
	ev := model.StatusEvent{Status: status, Meta: meta, At: h.now()}
	h.current.Set(ev)

	h.mu.RLock()
	subs := make([]statusSub, len(h.statuses))
	copy(subs, h.statuses)
	h.mu.RUnlock()

	for _, s := range subs {
		safeCall("status", func() { s.fn(ev) })
	}
}

// Status returns the last broadcast status.
func (h *Hub) Status() model.StatusEvent {
	return h.current.Get()
}

func safeCall(channel string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("listener panicked", "channel", channel, "panic", r)
		}
	}()
	fn()
}
