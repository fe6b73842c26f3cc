package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_RecordCountTrim(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Hour})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{0, 0, 10 * time.Second, 50 * time.Second} {
		if err := repo.RecordAttempt(ctx, "login:10.0.0.1", base.Add(offset)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	if ttl := server.TTL("rl:login:10.0.0.1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl within (0, 1h], got %v", ttl)
	}

	reference := base.Add(70 * time.Second)
	count, err := repo.CountAttempts(ctx, "login:10.0.0.1", time.Minute, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 attempts inside window, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "login:10.0.0.1", time.Minute, reference)
	if err != nil || !ok {
		t.Fatalf("OldestAttempt returned ok=%v err=%v", ok, err)
	}
	if !oldest.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("unexpected oldest attempt %v", oldest)
	}

	if err := repo.TrimWindow(ctx, "login:10.0.0.1", time.Minute, reference); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}
	members, err := client.ZCard(ctx, "rl:login:10.0.0.1").Result()
	if err != nil {
		t.Fatalf("ZCard returned error: %v", err)
	}
	if members != 2 {
		t.Fatalf("expected trim to leave 2 members, got %d", members)
	}
}

func TestRateLimitRepository_InvalidWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.CountAttempts(context.Background(), "x", 0, time.Now()); err == nil {
		t.Fatal("expected error for non-positive window")
	}
	if err := repo.TrimWindow(context.Background(), "x", -time.Second, time.Now()); err == nil {
		t.Fatal("expected error for negative window")
	}
}
