// Package ratelimit throttles unauthenticated endpoints per client key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-process token bucket limiter. It is used when no
// shared store is configured, so limits apply per replica.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	every   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewMemoryLimiter allows limit requests per window per key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
		every:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		idle:    window * 3,
		now:     time.Now,
	}
}

// Allow consumes a token for key when one is available.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evict(now)

	entry, ok := m.entries[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(m.every, m.burst)}
		m.entries[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, Limit: m.burst, RetryAfter: delay}, nil
	}
	return Decision{
		Allowed:   true,
		Limit:     m.burst,
		Remaining: int(entry.limiter.TokensAt(now)),
	}, nil
}

// evict drops limiters idle for longer than the idle period. Requires mu.
func (m *MemoryLimiter) evict(now time.Time) {
	for key, entry := range m.entries {
		if now.Sub(entry.lastSeen) > m.idle {
			delete(m.entries, key)
		}
	}
}
