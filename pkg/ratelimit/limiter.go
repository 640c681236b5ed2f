package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles admin-triggered financial operations. The settlement
// engine depends on this interface only; the backing store is wiring detail.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type fixedWindowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RedisLimiter applies a fixed-window limit backed by redis counters with
// TTL eviction.
type RedisLimiter struct {
	store  fixedWindowStore
	limit  int64
	window time.Duration
}

// NewRedisLimiter builds a limiter over a redis fixed-window store. A zero
// limit or window disables throttling.
func NewRedisLimiter(store fixedWindowStore, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{store: store, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.store == nil || l.limit <= 0 || l.window <= 0 {
		return true, nil
	}
	allowed, _, err := l.store.FixedWindowAllow(ctx, key, l.limit, l.window)
	if err != nil {
		return false, err
	}
	return allowed, nil
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is an in-process fixed-window limiter with TTL-based
// eviction. Used in tests and single-instance dev setups.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	limit   int64
	window  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter builds an in-memory limiter.
func NewMemoryLimiter(limit int, windowSize time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]window),
		limit:   int64(limit),
		window:  windowSize,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 || l.window <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = window{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}

	w.count++
	l.windows[key] = w
	return w.count <= l.limit, nil
}

// evictLocked drops expired windows so the map cannot grow unbounded.
func (l *MemoryLimiter) evictLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
