package server

import (
	"sync"
	"time"
)

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	limit      int
	window     time.Duration
	timestamps []time.Time
	lastSeen   time.Time
	mu         sync.Mutex
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window}
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	return r.allowAt(time.Now())
}

func (r *rateLimiter) allowAt(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = now
	cutoff := now.Add(-r.window)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= r.limit {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

func (r *rateLimiter) idleSince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen.Before(cutoff)
}

// ipLimiter shares one window per remote IP across all of its connections.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
}

func newIPLimiter() *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rateLimiter)}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	rl, ok := l.limiters[ip]
	if !ok {
		rl = newRateLimiter(IPRateLimitMessages, IPRateLimitWindow)
		l.limiters[ip] = rl
	}
	l.mu.Unlock()
	return rl.allow()
}

// purge drops entries idle for longer than ttl.
func (l *ipLimiter) purge(now time.Time, ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-ttl)
	n := 0
	for ip, rl := range l.limiters {
		if rl.idleSince(cutoff) {
			delete(l.limiters, ip)
			n++
		}
	}
	return n
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
