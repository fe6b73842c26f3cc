package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
)

// SlidingWindow admits at most Limit attempts per key inside Window. Every call is
// recorded, including rejected ones, so a client hammering the endpoint stays blocked.
type SlidingWindow struct {
	store  port.RateLimitStore
	clock  clock.Clock
	scope  string
	limit  int
	window time.Duration
	logger *zap.Logger
}

// Rule configures a limiter scope.
type Rule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// NewSlidingWindow builds a limiter over store. A non-positive limit disables limiting.
func NewSlidingWindow(store port.RateLimitStore, clk clock.Clock, rule Rule, logger *zap.Logger) *SlidingWindow {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	window := rule.Window
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		store:  store,
		clock:  clk,
		scope:  rule.Scope,
		limit:  rule.Limit,
		window: window,
		logger: logger,
	}
}

// Allow records an attempt for key and reports whether it is inside the limit.
// Store failures fail open and are logged.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.store == nil || l.limit <= 0 || key == "" {
		return true, nil
	}

	now := l.clock.Now()
	storageKey := fmt.Sprintf("%s:%s", l.scope, key)

	if err := l.store.TrimWindow(ctx, storageKey, l.window, now); err != nil {
		l.logger.Warn("rate limit trim failed", zap.String("scope", l.scope), zap.Error(err))
		return true, nil
	}

	if err := l.store.RecordAttempt(ctx, storageKey, now); err != nil {
		l.logger.Warn("rate limit record failed", zap.String("scope", l.scope), zap.Error(err))
		return true, nil
	}

	count, err := l.store.CountAttempts(ctx, storageKey, l.window, now)
	if err != nil {
		l.logger.Warn("rate limit count failed", zap.String("scope", l.scope), zap.Error(err))
		return true, nil
	}

	return count <= l.limit, nil
}

// RetryAfter reports how long until the oldest attempt for key leaves the window.
func (l *SlidingWindow) RetryAfter(ctx context.Context, key string) time.Duration {
	if l == nil || l.store == nil {
		return 0
	}
	now := l.clock.Now()
	oldest, ok, err := l.store.OldestAttempt(ctx, fmt.Sprintf("%s:%s", l.scope, key), l.window, now)
	if err != nil {
		l.logger.Warn("rate limit oldest lookup failed", zap.String("scope", l.scope), zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	if reset := oldest.Add(l.window); reset.After(now) {
		return reset.Sub(now)
	}
	return 0
}

var _ port.RateLimiter = (*SlidingWindow)(nil)
