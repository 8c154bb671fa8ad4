// Package syncx provides guarded values and capped buffers shared by the correlation core
package syncx

import "sync"

// Guard holds a value behind an RWMutex. Readers get copies; writers mutate in place.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value.
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Swap replaces the value and returns the previous one.
func (g *Guard[T]) Swap(v T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.value
	g.value = v
	return old
}

// Write executes fn under the write lock.
func (g *Guard[T]) Write(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// CompareAndSet replaces the value when match reports the current one as stale.
func (g *Guard[T]) CompareAndSet(v T, match func(cur T) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !match(g.value) {
		return false
	}
	g.value = v
	return true
}
