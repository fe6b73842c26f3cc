package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-server/internal/infra/clock"
)

const readinessTimeout = 2 * time.Second

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessCheck probes one dependency.
type ReadinessCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck adds a dependency probe to the readiness endpoint.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandler) {
		if check != nil {
			h.checks = append(h.checks, namedCheck{name: name, check: check})
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(clk clock.Clock) HealthOption {
	return func(h *HealthHandler) {
		if clk != nil {
			h.clock = clk
		}
	}
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	clock     clock.Clock
	startedAt time.Time
	checks    []namedCheck
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{clock: clock.Real()}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.clock.Now().UTC()
	return h
}

// Status reports that the process is up.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: h.clock.Now().UTC(),
	})
}

// Readiness runs every registered check and answers 503 when any of them fails.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	resp := HealthResponse{
		Status:    "ready",
		StartedAt: h.startedAt,
		Checks:    make(map[string]string, len(h.checks)),
	}
	for _, nc := range h.checks {
		if err := nc.check(ctx); err != nil {
			resp.Checks[nc.name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[nc.name] = "ok"
	}
	resp.Timestamp = h.clock.Now().UTC()
	c.JSON(status, resp)
}
