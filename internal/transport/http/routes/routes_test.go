package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/infra/config"
	"github.com/arklim/identity-server/internal/infra/security"
	"github.com/arklim/identity-server/internal/infra/telemetry"
	httproutes "github.com/arklim/identity-server/internal/transport/http/routes"
)

type stubExecutor struct {
	calls int
}

func (s *stubExecutor) Execute(_ context.Context, req command.Request) command.Response {
	s.calls++
	resp := command.OK(nil)
	resp.RequestID = req.RequestID
	return resp
}

type stubTokens struct{}

func (stubTokens) ParseAccessToken(string, string, time.Time) (*security.AccessTokenClaims, error) {
	return nil, errors.New("invalid")
}

func (stubTokens) JWKS() ([]byte, error) { return []byte(`{"keys":[]}`), nil }

type deniedLimiter struct{}

func (deniedLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

func newEngine(t *testing.T, exec *stubExecutor, limiter bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{
		App:       config.AppSettings{Env: "test", AllowedOrigins: []string{"*"}},
		JWT:       config.JWTSettings{Issuer: "identity"},
		RateLimit: config.RateLimitSettings{HTTPMaxRequests: 1},
	}
	deps := httproutes.Dependencies{
		Config:   cfg,
		Logger:   zaptest.NewLogger(t),
		Executor: exec,
		Tokens:   stubTokens{},
		Metrics:  telemetry.NewMetrics(),
	}
	if limiter {
		deps.RateLimiter = deniedLimiter{}
	}
	r, err := httproutes.Register(deps)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := newEngine(t, &stubExecutor{}, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestMetricsAndJWKSEndpoints(t *testing.T) {
	r := newEngine(t, &stubExecutor{}, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("jwks: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "identity_http_requests_total") {
		t.Fatalf("metrics: expected http collectors, got %d", w.Code)
	}
}

func TestCommandEndpoint(t *testing.T) {
	exec := &stubExecutor{}
	r := newEngine(t, exec, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(`{"type":"user.self"}`)))
	if w.Code != http.StatusOK || exec.calls != 1 {
		t.Fatalf("expected executed command, got %d (%d calls)", w.Code, exec.calls)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(`{"type":"user.self"}`))
	req.Header.Set("Authorization", "Bearer broken")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || exec.calls != 1 {
		t.Fatalf("expected 401 before execution, got %d", w.Code)
	}
}

func TestCommandEndpointRateLimited(t *testing.T) {
	exec := &stubExecutor{}
	r := newEngine(t, exec, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/email/deny?token=x", nil))
	if w.Code != http.StatusTooManyRequests || exec.calls != 0 {
		t.Fatalf("expected 429 without execution, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", w.Code)
	}
}
