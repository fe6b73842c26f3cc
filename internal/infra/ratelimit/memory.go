package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
)

// Local is a per-process token bucket limiter keyed by an arbitrary string, used when
// no redis is configured. Idle buckets are dropped after the configured window.
type Local struct {
	mu      sync.Mutex
	clock   clock.Clock
	every   rate.Limit
	burst   int
	idle    time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocal allows rule.Limit attempts per rule.Window with a burst of rule.Limit.
func NewLocal(clk clock.Clock, rule Rule) *Local {
	if clk == nil {
		clk = clock.Real()
	}
	window := rule.Window
	if window <= 0 {
		window = time.Minute
	}
	limit := max(rule.Limit, 0)
	return &Local{
		clock:   clk,
		every:   rate.Every(window / time.Duration(max(limit, 1))),
		burst:   limit,
		idle:    window,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token for key.
func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	if l.burst <= 0 || key == "" {
		return true, nil
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

func (l *Local) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}

var _ port.RateLimiter = (*Local)(nil)
