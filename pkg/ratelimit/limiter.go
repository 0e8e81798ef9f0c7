// Package ratelimit implements sliding-window request limiting keyed by an
// arbitrary client identifier (IP address, API key, ...).
//
// The limiter counts events within a trailing time window rather than fixed
// buckets, so a burst at a bucket boundary can never double the effective
// limit. It is used by the page cache manager for generic API traffic; the
// checkout path layers its own attempt semantics on top in pkg/orderlimit.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storecache_rate_limit_allowed_total",
		Help: "Total number of requests allowed by the sliding-window limiter",
	})

	rateLimitDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storecache_rate_limit_denied_total",
		Help: "Total number of requests denied by the sliding-window limiter",
	})
)

// Decision is the outcome of a limit check. A denial is a well-defined
// negative result, not an error.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long until the oldest counted event leaves the
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter counts events per key within a trailing window.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time

	// now is overridable for deterministic tests.
	now func() time.Time
}

// New creates a limiter allowing limit events per key within window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow checks and, when allowed, records one event for key.
// Denied requests are not recorded, so a throttled client cannot extend its
// own penalty by retrying.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	events := l.prune(key, now)

	if len(events) >= l.limit {
		rateLimitDeniedTotal.Inc()
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: l.window - now.Sub(events[0]),
		}
	}

	l.events[key] = append(events, now)
	rateLimitAllowedTotal.Inc()

	return Decision{
		Allowed:   true,
		Remaining: l.limit - len(events) - 1,
	}
}

// Reset forgets all events for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

// Len returns the number of tracked keys. Keys whose events have all left
// the window still count until their next Allow call or a Cleanup.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Cleanup drops keys with no events left in the window and returns how many
// were removed. Intended to run periodically from the owning process.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key := range l.events {
		if len(l.prune(key, now)) == 0 {
			delete(l.events, key)
			removed++
		}
	}
	return removed
}

// prune drops events older than the window and returns the survivors.
// Caller must hold l.mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	events := l.events[key]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		events = events[i:]
		l.events[key] = events
	}
	return events
}
