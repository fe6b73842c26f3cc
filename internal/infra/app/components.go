package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/config"
	"github.com/arklim/identity-server/internal/infra/database"
	kafkainfra "github.com/arklim/identity-server/internal/infra/kafka"
	"github.com/arklim/identity-server/internal/infra/mail"
	"github.com/arklim/identity-server/internal/infra/ratelimit"
	redisinfra "github.com/arklim/identity-server/internal/infra/redis"
	"github.com/arklim/identity-server/internal/infra/security"
	"github.com/arklim/identity-server/internal/repository/memory"
	postgresrepo "github.com/arklim/identity-server/internal/repository/postgres"
	redisrepo "github.com/arklim/identity-server/internal/repository/redis"
	"github.com/arklim/identity-server/internal/usecase"
)

// Storage is an opened query facade together with its readiness probe.
type Storage struct {
	Store port.Transactor
	// Ping is nil for the in-memory store.
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage connects the configured store. PostgreSQL schemas are created when
// missing.
func OpenStorage(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Storage, error) {
	if cfg.App.Storage == "memory" {
		log.Warn("using in-memory storage, state is lost on restart")
		return &Storage{Store: memory.NewStore(), Close: func() {}}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	store := postgresrepo.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Storage{Store: store, Ping: store.Ping, Close: store.Close}, nil
}

// NewCredentials builds the password hasher and the policy-checked credential helper.
func NewCredentials(cfg *config.AppConfig) (*security.Argon2Hasher, *usecase.Credentials, error) {
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure argon2: %w", err)
	}
	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:  cfg.Password.MinLength,
		MinClasses: cfg.Password.MinClasses,
		MinScore:   cfg.Password.MinScore,
	})
	return hasher, usecase.NewCredentials(hasher, policy), nil
}

// limiters holds one limiter per throttled concern.
type limiters struct {
	login     port.RateLimiter
	reset     port.RateLimiter
	challenge port.RateLimiter
	http      port.RateLimiter
}

// newLimiters uses redis sliding windows when redis is configured and per-process token
// buckets otherwise.
func newLimiters(cfg *config.AppConfig, client *redisinfra.Client, clk clock.Clock, log *zap.Logger) limiters {
	window := cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}
	rules := struct{ login, reset, challenge, http ratelimit.Rule }{
		login:     ratelimit.Rule{Scope: "login", Limit: cfg.RateLimit.LoginMaxAttempts, Window: window},
		reset:     ratelimit.Rule{Scope: "password_reset", Limit: cfg.RateLimit.PasswordResetMaxAttempts, Window: time.Hour},
		challenge: ratelimit.Rule{Scope: "email_challenge", Limit: cfg.RateLimit.EmailChallengeMaxPerHour, Window: time.Hour},
		http:      ratelimit.Rule{Scope: "http", Limit: cfg.RateLimit.HTTPMaxRequests, Window: window},
	}

	if client == nil {
		return limiters{
			login:     ratelimit.NewLocal(clk, rules.login),
			reset:     ratelimit.NewLocal(clk, rules.reset),
			challenge: ratelimit.NewLocal(clk, rules.challenge),
			http:      ratelimit.NewLocal(clk, rules.http),
		}
	}

	ttl := cfg.Redis.KeyTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	store := redisrepo.NewRateLimitRepository(client.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       ttl,
	})
	return limiters{
		login:     ratelimit.NewSlidingWindow(store, clk, rules.login, log),
		reset:     ratelimit.NewSlidingWindow(store, clk, rules.reset, log),
		challenge: ratelimit.NewSlidingWindow(store, clk, rules.challenge, log),
		http:      ratelimit.NewSlidingWindow(store, clk, rules.http, log),
	}
}

// newMailSender sends over SMTP when a host is configured and logs mail otherwise.
func newMailSender(cfg config.MailSettings, log *zap.Logger) (port.MailSender, error) {
	if cfg.Host == "" {
		log.Info("smtp host not configured, logging outbound mail")
		return mail.NewLogSender(log), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		Password:   cfg.Password,
		From:       cfg.From,
		FromName:   cfg.FromName,
		Encryption: mail.EncryptionMode(cfg.Encryption),
		Timeout:    cfg.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init smtp: %w", err)
	}
	return sender, nil
}

// newAuditPublisher publishes to Kafka when brokers are configured and logs events
// otherwise. The returned producer is nil for the stub.
func newAuditPublisher(cfg *config.AppConfig, log *zap.Logger) (port.AuditPublisher, *kafkainfra.Producer) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log), nil
	}
	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log), nil
	}
	log.Info("kafka audit publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewAuditPublisher(producer, cfg.App, log), producer
}
