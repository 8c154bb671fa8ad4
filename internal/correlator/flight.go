package correlator

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSuperseded = errors.New("superseded by a newer scoring call")

// flight is one outstanding scoring call.
type flight struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   context.CancelFunc
}

// flights keeps at most one scoring call outstanding. Generations are handed out
// when a delta passes gating, so a late-starting older call can never displace a newer one.
type flights struct {
	mu      sync.Mutex
	current *flight
	latest  uint64
}

// begin cancels any outstanding call and starts gen with a deadline. It returns nil
// when a newer generation has already begun.
func (f *flights) begin(parent context.Context, gen uint64, deadline time.Duration) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen < f.latest {
		return nil
	}
	if f.current != nil {
		f.current.cancel(errSuperseded)
	}
	ctx, cancel := context.WithCancelCause(parent)
	ctx, stop := context.WithTimeout(ctx, deadline)
	fl := &flight{gen: gen, ctx: ctx, cancel: cancel, stop: stop}
	f.current = fl
	f.latest = gen
	return fl
}

// supersede records gen as the newest generation the moment its delta passes gating
// and cancels any older outstanding call, even before gen reaches its own scoring call.
func (f *flights) supersede(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen > f.latest {
		f.latest = gen
	}
	if f.current != nil && f.current.gen < f.latest {
		f.current.cancel(errSuperseded)
		f.current = nil
	}
}

// stale reports whether a newer generation has passed gating since gen.
func (f *flights) stale(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gen < f.latest
}

// finish releases fl and reports whether it is still the newest call.
// Safe to call more than once.
func (f *flights) finish(fl *flight) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl.stop()
	fl.cancel(nil)
	if f.current != fl || fl.gen < f.latest {
		return false
	}
	f.current = nil
	return true
}

// cancel aborts the outstanding call, if any. Idempotent.
func (f *flights) cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		f.current.cancel(errSuperseded)
		f.current = nil
	}
}

// superseded reports whether fl was cancelled in favour of a newer call.
func (fl *flight) superseded() bool {
	return errors.Is(context.Cause(fl.ctx), errSuperseded)
}
