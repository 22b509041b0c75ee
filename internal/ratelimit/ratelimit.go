// Package ratelimit provides request-admission policies keyed by client
// identity over sliding time windows.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of an admission check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time
}

// Limiter admits or rejects a request identified by key against a window of
// at most max requests. Implementations must be safe for concurrent use.
//
// The in-memory implementation below is suitable for a single instance;
// multi-instance deployments need an implementation backed by a shared store.
type Limiter interface {
	Check(key string, window time.Duration, max int) Result
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local Limiter with periodic sweep of expired
// entries.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
	once    sync.Once
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns a limiter that sweeps expired entries every
// sweepInterval. Close must be called to stop the sweeper.
func NewMemoryLimiter(sweepInterval time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go l.sweep(sweepInterval)
	return l
}

// Check records one request for key and reports whether it is admitted.
func (l *MemoryLimiter) Check(key string, window time.Duration, max int) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || e.resetAt.Before(now) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		l.entries[key] = e
		return Result{Allowed: true, Remaining: max - 1, ResetAt: e.resetAt}
	}

	e.count++
	if e.count > max {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}
	}
	return Result{Allowed: true, Remaining: max - e.count, ResetAt: e.resetAt}
}

// Close stops the background sweeper. Safe to call more than once.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *MemoryLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, e := range l.entries {
				if e.resetAt.Before(now) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
