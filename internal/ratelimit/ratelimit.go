// Package ratelimit gates the query API with per-client sliding-window
// admission control. The in-memory limiter is the default; a Redis-backed
// variant serves multi-instance deployments.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is a structured admission outcome. A rejection carries a
// retry-after hint equal to the window length.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for a client identity.
type Limiter interface {
	Allow(ctx context.Context, client string) (Decision, error)
	Close() error
}

// MemoryLimiter is a sliding-window counter per client identity, pruned
// on every call. Safe for concurrent use.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter allows max requests per client within window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow prunes timestamps older than the window, then admits only if the
// pruned count is below the maximum, recording the new timestamp on
// admission.
func (l *MemoryLimiter) Allow(_ context.Context, client string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	history := l.windows[client]
	pruned := history[:0]
	for _, ts := range history {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= l.max {
		l.windows[client] = pruned
		return Decision{Allowed: false, RetryAfter: l.window}, nil
	}

	l.windows[client] = append(pruned, now)
	return Decision{Allowed: true}, nil
}

func (l *MemoryLimiter) Close() error { return nil }

// NoOpLimiter admits everything; used when admission control is disabled.
type NoOpLimiter struct{}

func (NoOpLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (NoOpLimiter) Close() error { return nil }
