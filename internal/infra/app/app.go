package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/command/handlers"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/config"
	kafkainfra "github.com/arklim/identity-server/internal/infra/kafka"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/infra/mail"
	redisinfra "github.com/arklim/identity-server/internal/infra/redis"
	"github.com/arklim/identity-server/internal/infra/security"
	"github.com/arklim/identity-server/internal/infra/telemetry"
	"github.com/arklim/identity-server/internal/pagination"
	transportgrpc "github.com/arklim/identity-server/internal/transport/grpc"
	"github.com/arklim/identity-server/internal/transport/http/routes"
	"github.com/arklim/identity-server/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	storage    *Storage
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	grpcServer *grpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	clk := clock.Real()

	a := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	metrics := telemetry.NewMetrics()

	a.storage, err = OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Host != "" {
		a.redis, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	} else {
		log.Info("redis not configured, using in-process rate limiters")
	}
	limits := newLimiters(cfg, a.redis, clk, log)

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	hasher, credentials, err := NewCredentials(cfg)
	if err != nil {
		return nil, err
	}

	composer, err := mail.NewComposer(mail.DefaultSubjects())
	if err != nil {
		return nil, fmt.Errorf("init mail composer: %w", err)
	}
	sender, err := newMailSender(cfg.Mail, log)
	if err != nil {
		return nil, err
	}

	publisher, producer := newAuditPublisher(cfg, log)
	a.producer = producer

	catalog := handlers.NewCatalog(handlers.Deps{
		Admission: usecase.NewAdmissionController(limits.login, hasher, clk, usecase.AdmissionSettings{
			HistoryLimit: cfg.Login.HistoryLimit,
		}, metrics, log),
		Challenges: usecase.NewChallengeService(limits.challenge, composer, sender, clk, usecase.ChallengeSettings{
			TTL:       cfg.Challenge.EmailTTL,
			PublicURL: cfg.App.PublicURL,
		}, log),
		Resets: usecase.NewPasswordResetService(limits.reset, composer, sender, credentials, clk, usecase.PasswordResetSettings{
			TTL:       cfg.Challenge.PasswordResetTTL,
			PublicURL: cfg.App.PublicURL,
			Page:      cfg.Challenge.PasswordResetPage,
		}, log),
		Credentials: credentials,
		Hasher:      hasher,
		Tokens:      jwtManager,
		Token: handlers.TokenSettings{
			Issuer: cfg.JWT.Issuer,
			TTL:    cfg.JWT.AccessTokenTTL,
		},
		Paging:     pagination.NewRegistry(clk, cfg.Paging.IdleTimeout, metrics),
		LoginDelay: cfg.Login.Delay,
	})

	executor := command.NewExecutor(a.storage.Store, catalog, command.Options{
		Clock:     clk,
		Publisher: publisher,
		Observer:  metrics,
		Tracer:    a.tracer.Tracer(telemetry.TracerName),
		Logger:    log,
	})

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Clock:       clk,
		Executor:    executor,
		Tokens:      jwtManager,
		Metrics:     metrics,
		RateLimiter: limits.http,
	}
	if a.storage.Ping != nil {
		deps.Database = pingFunc(a.storage.Ping)
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine, err = routes.Register(deps)
	if err != nil {
		return nil, fmt.Errorf("init http routes: %w", err)
	}

	if cfg.GRPC.Enabled {
		a.grpcServer, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Executor:       executor,
			Tokens:         jwtManager,
			Issuer:         cfg.JWT.Issuer,
			Clock:          clk,
			Logger:         log,
			Registerer:     metrics.Registry,
			TracerProvider: a.tracer.Provider(),
		})
		if err != nil {
			return nil, fmt.Errorf("init grpc server: %w", err)
		}
		a.grpcAddr = net.JoinHostPort(cfg.GRPC.Host, fmt.Sprint(cfg.GRPC.Port))
	}

	ok = true
	return a, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func (a *Application) Run(ctx context.Context) error {
	defer a.close(context.Background())

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, fmt.Sprint(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity server",
		zap.String("env", a.cfg.App.Env),
		zap.String("storage", a.cfg.App.Storage),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	case runErr = <-grpcErrCh:
	}

	a.logger.Info("shutting down")
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	return runErr
}

// close releases every opened resource. It tolerates a partially built Application.
func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.storage != nil {
		a.storage.Close()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown tracer", zap.Error(err))
	}
	_ = a.logger.Sync()
}
