package syncx

// Ring is a capped, ordered buffer that evicts from the front once full.
// It is not safe for concurrent use; callers serialize access.
type Ring[T any] struct {
	items []T
	limit int
}

// NewRing creates a ring holding at most limit items.
func NewRing[T any](limit int) *Ring[T] {
	if limit <= 0 {
		limit = 1
	}
	return &Ring[T]{items: make([]T, 0, min(limit, 64)), limit: limit}
}

// Push appends v, evicting the oldest items past capacity.
func (r *Ring[T]) Push(v T) {
	r.items = append(r.items, v)
	if over := len(r.items) - r.limit; over > 0 {
		clear(r.items[:over])
		r.items = r.items[over:]
	}
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int { return len(r.items) }

// Cap returns the capacity limit.
func (r *Ring[T]) Cap() int { return r.limit }

// At returns the i-th oldest item. Negative indexes count from the newest.
func (r *Ring[T]) At(i int) T {
	if i < 0 {
		i += len(r.items)
	}
	return r.items[i]
}

// Last returns a copy of the newest n items in order.
func (r *Ring[T]) Last(n int) []T {
	if n > len(r.items) {
		n = len(r.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}

// Items returns a copy of all buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(len(r.items))
}

// Filter keeps only the items for which keep returns true.
func (r *Ring[T]) Filter(keep func(T) bool) {
	kept := r.items[:0]
	for _, v := range r.items {
		if keep(v) {
			kept = append(kept, v)
		}
	}
	clear(r.items[len(kept):])
	r.items = kept
}

// Reset drops all items.
func (r *Ring[T]) Reset() {
	clear(r.items)
	r.items = r.items[:0]
}
