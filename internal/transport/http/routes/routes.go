package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/config"
	"github.com/arklim/identity-server/internal/infra/telemetry"
	"github.com/arklim/identity-server/internal/transport/bearer"
	"github.com/arklim/identity-server/internal/transport/http/handlers"
	"github.com/arklim/identity-server/internal/transport/http/middleware"
)

// Tokens verifies access tokens and publishes the verification keys.
type Tokens interface {
	bearer.TokenParser
	handlers.KeySet
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Clock       clock.Clock
	Executor    handlers.Executor
	Tokens      Tokens
	Metrics     *telemetry.Metrics
	RateLimiter port.RateLimiter
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	metricsHandler := gin.WrapH(promhttp.Handler())
	if deps.Metrics != nil {
		httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: deps.Metrics.Registry})
		if err != nil {
			return nil, err
		}
		r.Use(httpMetrics.Handler())
		metricsHandler = gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	healthOptions := []handlers.HealthOption{handlers.WithClock(deps.Clock)}
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", metricsHandler)

	var keys handlers.KeySet
	if deps.Tokens != nil {
		keys = deps.Tokens
	}
	r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(keys).Keys)

	commands := handlers.NewCommandHandler(deps.Executor)
	chain := buildCommandMiddlewares(deps, log)

	api := r.Group("/api/v1", chain...)
	api.POST("/command", commands.Execute)

	email := r.Group("/email", chain...)
	email.GET("/permit", commands.EmailPermit)
	email.GET("/deny", commands.EmailDeny)

	return r, nil
}

func buildCommandMiddlewares(deps Dependencies, log *zap.Logger) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if deps.Tokens != nil {
		chain = append(chain, middleware.Authenticate(deps.Tokens, deps.Config.JWT.Issuer, deps.Clock))
	}
	if deps.RateLimiter != nil && deps.Config.RateLimit.HTTPMaxRequests > 0 {
		chain = append(chain, middleware.RateLimit(log, middleware.RateLimitRule{
			Name:       "http_ip",
			Limiter:    deps.RateLimiter,
			Identifier: middleware.ClientIPIdentifier(),
		}))
	}
	return chain
}
