package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/infra/clock"
)

type memoryStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{attempts: make(map[string][]time.Time)}
}

func (s *memoryStore) TrimWindow(_ context.Context, id string, window time.Duration, ref time.Time) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.attempts[id][:0]
	for _, at := range s.attempts[id] {
		if !at.Before(ref.Add(-window)) {
			kept = append(kept, at)
		}
	}
	s.attempts[id] = kept
	return nil
}

func (s *memoryStore) CountAttempts(_ context.Context, id string, window time.Duration, ref time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, at := range s.attempts[id] {
		if !at.Before(ref.Add(-window)) && !at.After(ref) {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) RecordAttempt(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[id] = append(s.attempts[id], at)
	return nil
}

func (s *memoryStore) OldestAttempt(_ context.Context, id string, window time.Duration, ref time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inWindow := make([]time.Time, 0, len(s.attempts[id]))
	for _, at := range s.attempts[id] {
		if !at.Before(ref.Add(-window)) {
			inWindow = append(inWindow, at)
		}
	}
	if len(inWindow) == 0 {
		return time.Time{}, false, nil
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
	return inWindow[0], true, nil
}

func TestSlidingWindowBlocksAfterLimit(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewSlidingWindow(newMemoryStore(), clk, Rule{Scope: "login", Limit: 3, Window: time.Minute}, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("attempt %d: expected allowed, got %v err=%v", i+1, allowed, err)
		}
		clk.Advance(time.Second)
	}

	allowed, _ := limiter.Allow(ctx, "10.0.0.1")
	if allowed {
		t.Fatal("expected fourth attempt to be rejected")
	}
	if retry := limiter.RetryAfter(ctx, "10.0.0.1"); retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry after %v", retry)
	}

	other, _ := limiter.Allow(ctx, "10.0.0.2")
	if !other {
		t.Fatal("expected independent key to be allowed")
	}

	clk.Advance(2 * time.Minute)
	allowed, _ = limiter.Allow(ctx, "10.0.0.1")
	if !allowed {
		t.Fatal("expected attempt after window to be allowed")
	}
}

func TestSlidingWindowFailsOpen(t *testing.T) {
	store := newMemoryStore()
	store.failWith = errors.New("redis down")
	limiter := NewSlidingWindow(store, clock.NewFake(time.Now()), Rule{Scope: "login", Limit: 1, Window: time.Minute}, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("expected fail-open, got %v err=%v", allowed, err)
		}
	}
}

func TestLocalLimiterRefills(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewLocal(clk, Rule{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(ctx, "a"); !ok {
			t.Fatalf("attempt %d unexpectedly rejected", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, "a"); ok {
		t.Fatal("expected burst to be exhausted")
	}
	if ok, _ := limiter.Allow(ctx, "b"); !ok {
		t.Fatal("expected independent key to be allowed")
	}

	clk.Advance(31 * time.Second)
	if ok, _ := limiter.Allow(ctx, "a"); !ok {
		t.Fatal("expected one token after refill interval")
	}
}

func TestLocalLimiterDisabled(t *testing.T) {
	limiter := NewLocal(clock.NewFake(time.Now()), Rule{Limit: 0, Window: time.Minute})
	for i := 0; i < 10; i++ {
		if ok, _ := limiter.Allow(context.Background(), "a"); !ok {
			t.Fatal("expected disabled limiter to allow")
		}
	}
}
