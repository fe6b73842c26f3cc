package app

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/config"
	kafkainfra "github.com/arklim/identity-server/internal/infra/kafka"
	"github.com/arklim/identity-server/internal/infra/mail"
	"github.com/arklim/identity-server/internal/infra/ratelimit"
	redisinfra "github.com/arklim/identity-server/internal/infra/redis"
	"github.com/arklim/identity-server/internal/repository/memory"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Env: "test", Storage: "memory"},
		RateLimit: config.RateLimitSettings{
			WindowDuration:           time.Minute,
			LoginMaxAttempts:         2,
			PasswordResetMaxAttempts: 1,
			EmailChallengeMaxPerHour: 1,
			HTTPMaxRequests:          5,
		},
		Redis: config.RedisSettings{KeyPrefix: "test:rl"},
		Argon2: config.Argon2Settings{
			Memory:      8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Password: config.PasswordSettings{MinLength: 8, MinClasses: 2, MinScore: 0},
	}
}

func TestOpenStorageMemory(t *testing.T) {
	storage, err := OpenStorage(context.Background(), testConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer storage.Close()
	if _, ok := storage.Store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", storage.Store)
	}
	if storage.Ping != nil {
		t.Fatalf("memory storage has no readiness probe")
	}
}

func TestLocalLimitersWithoutRedis(t *testing.T) {
	l := newLimiters(testConfig(), nil, clock.NewFake(time.Unix(0, 0)), zaptest.NewLogger(t))
	if _, ok := l.login.(*ratelimit.Local); !ok {
		t.Fatalf("expected local login limiter, got %T", l.login)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if allowed, _ := l.login.Allow(ctx, "10.0.0.1"); !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if allowed, _ := l.login.Allow(ctx, "10.0.0.1"); allowed {
		t.Fatalf("third attempt should be throttled")
	}
}

func TestRedisLimiters(t *testing.T) {
	server := miniredis.RunT(t)
	port, err := strconv.Atoi(server.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	log := zaptest.NewLogger(t)
	client, err := redisinfra.NewClient(config.RedisSettings{Host: server.Host(), Port: port}, log)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	l := newLimiters(testConfig(), client, nil, log)
	if _, ok := l.reset.(*ratelimit.SlidingWindow); !ok {
		t.Fatalf("expected sliding window limiter, got %T", l.reset)
	}
	ctx := context.Background()
	if allowed, err := l.reset.Allow(ctx, "user-1"); err != nil || !allowed {
		t.Fatalf("first reset should be allowed: %v", err)
	}
	if allowed, _ := l.reset.Allow(ctx, "user-1"); allowed {
		t.Fatalf("second reset within the hour should be throttled")
	}
	if allowed, _ := l.challenge.Allow(ctx, "user-1"); !allowed {
		t.Fatalf("scopes must not share counters")
	}
}

func TestNewCredentialsAppliesPolicy(t *testing.T) {
	hasher, creds, err := NewCredentials(testConfig())
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if hasher == nil || creds == nil {
		t.Fatalf("expected hasher and credentials")
	}
}

func TestFallbacksWithoutInfrastructure(t *testing.T) {
	log := zaptest.NewLogger(t)
	cfg := testConfig()

	sender, err := newMailSender(cfg.Mail, log)
	if err != nil {
		t.Fatalf("mail sender: %v", err)
	}
	if _, ok := sender.(*mail.LogSender); !ok {
		t.Fatalf("expected log sender, got %T", sender)
	}

	publisher, producer := newAuditPublisher(cfg, log)
	if producer != nil {
		t.Fatalf("no producer expected without brokers")
	}
	if _, ok := publisher.(*kafkainfra.StubPublisher); !ok {
		t.Fatalf("expected stub publisher, got %T", publisher)
	}
}
