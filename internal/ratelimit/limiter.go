// Package ratelimit throttles the IMAP force-poll endpoint so a chatty client
// can't drive the mailbox harder than the configured interval (§2.O).
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides per-scope token-bucket throttling. A scope is typically a
// fixed string ("imap-force-poll") rather than a per-caller key, since the
// rule being enforced is "don't hammer the mailbox", not "don't hammer per
// user".
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a Limiter where each scope gets its own token bucket at the
// given rate (per second) and burst size.
func New(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether a request in the given scope may proceed now,
// without blocking.
func (l *Limiter) Allow(scope string) bool {
	return l.get(scope).Allow()
}

// Wait blocks until a request in the given scope is allowed, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, scope string) error {
	return l.get(scope).Wait(ctx)
}

func (l *Limiter) get(scope string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[scope]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[scope]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.limit, l.burst)
	l.limiters[scope] = lim
	return lim
}
