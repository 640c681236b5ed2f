package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeWindowStore struct {
	allowed bool
	err     error
	scopes  []string
}

func (f *fakeWindowStore) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	f.scopes = append(f.scopes, scope)
	return f.allowed, 1, f.err
}

func TestRedisLimiterDelegates(t *testing.T) {
	store := &fakeWindowStore{allowed: true}
	limiter := NewRedisLimiter(store, 5, time.Minute)

	ok, err := limiter.Allow(context.Background(), "payout-run:admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected allow")
	}
	if len(store.scopes) != 1 || store.scopes[0] != "payout-run:admin-1" {
		t.Fatalf("unexpected scopes %v", store.scopes)
	}
}

func TestRedisLimiterDisabledWhenZero(t *testing.T) {
	store := &fakeWindowStore{allowed: false}
	limiter := NewRedisLimiter(store, 0, time.Minute)

	ok, err := limiter.Allow(context.Background(), "any")
	if err != nil || !ok {
		t.Fatalf("zero limit should disable throttling: ok=%v err=%v", ok, err)
	}
	if len(store.scopes) != 0 {
		t.Fatal("store should not be consulted when disabled")
	}
}

func TestRedisLimiterPropagatesError(t *testing.T) {
	store := &fakeWindowStore{err: errors.New("redis down")}
	limiter := NewRedisLimiter(store, 5, time.Minute)

	ok, err := limiter.Allow(context.Background(), "any")
	if err == nil {
		t.Fatal("expected error")
	}
	if ok {
		t.Fatal("errored allow must fail closed")
	}
}

func TestMemoryLimiterWindow(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatal("third request in window should be blocked")
	}

	// Advance past the reset; counter must restart and stale keys evict.
	current = current.Add(2 * time.Minute)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatal("new window should allow again")
	}
	if len(limiter.windows) != 1 {
		t.Fatalf("expired windows should be evicted, have %d", len(limiter.windows))
	}
}

func TestMemoryLimiterIsolatesKeys(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "admin-a"); !ok {
		t.Fatal("first key should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "admin-b"); !ok {
		t.Fatal("second key must not share the first key's window")
	}
}
