package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/command/handlers"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/transport/codec"
	"github.com/arklim/identity-server/internal/transport/http/middleware"
)

type stubExecutor struct {
	got  []command.Request
	resp command.Response
}

func (s *stubExecutor) Execute(_ context.Context, req command.Request) command.Response {
	s.got = append(s.got, req)
	resp := s.resp
	resp.RequestID = req.RequestID
	resp.CorrelationID = req.CorrelationID
	return resp
}

func newEngine(exec Executor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCommandHandler(exec)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/api/v1/command", h.Execute)
	r.GET("/email/permit", h.EmailPermit)
	r.GET("/email/deny", h.EmailDeny)
	return r
}

func TestExecuteJSON(t *testing.T) {
	exec := &stubExecutor{resp: command.OK(map[string]string{"name": "alice"})}
	r := newEngine(exec)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(`{"type":"user.self","correlation_id":"c-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(exec.got) != 1 {
		t.Fatalf("expected one execution, got %d", len(exec.got))
	}
	got := exec.got[0]
	if _, ok := got.Command.(handlers.UserSelf); !ok {
		t.Fatalf("unexpected command %T", got.Command)
	}
	if got.RequestID == uuid.Nil || got.CorrelationID != "c-1" || got.UserAgent != "test-agent" {
		t.Fatalf("request metadata not filled: %+v", got)
	}
	if w.Header().Get(middleware.RequestIDHeader) != got.RequestID.String() {
		t.Fatalf("reply header does not carry the request id")
	}

	var reply codec.Reply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Error != nil || reply.RequestID != got.RequestID.String() {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestExecuteKeepsEnvelopeRequestID(t *testing.T) {
	exec := &stubExecutor{resp: command.OK(nil)}
	r := newEngine(exec)
	id := uuid.New()

	w := httptest.NewRecorder()
	body := `{"type":"admin.self","request_id":"` + id.String() + `"}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(body)))

	if len(exec.got) != 1 || exec.got[0].RequestID != id {
		t.Fatalf("envelope request id not kept: %+v", exec.got)
	}
}

func TestExecuteCBOR(t *testing.T) {
	exec := &stubExecutor{resp: command.Reject(domain.ErrBanned, "banned")}
	r := newEngine(exec)

	frame, err := codec.Encode(codec.CBOR, uuid.Nil, "", handlers.UserGet{Target: handlers.Target{ID: uuid.New()}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", bytes.NewReader(frame))
	req.Header.Set("Content-Type", "application/cbor")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/cbor" {
		t.Fatalf("expected cbor reply, got %q", ct)
	}
	var reply codec.Reply
	if err := codec.CBOR.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Error == nil || reply.Error.Code != domain.ErrBanned {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestExecuteRejectsMalformedFrame(t *testing.T) {
	exec := &stubExecutor{}
	r := newEngine(exec)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(`{"type":"nope"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(exec.got) != 0 {
		t.Fatalf("pipeline must not run for an undecodable frame")
	}
	var reply codec.Reply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Error == nil || reply.Error.Code != domain.ErrProtocol || reply.RequestID == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestExecuteRejectsOversizedFrame(t *testing.T) {
	exec := &stubExecutor{}
	r := newEngine(exec)

	w := httptest.NewRecorder()
	body := bytes.Repeat([]byte("x"), MaxFrameBytes+1)
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/command", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest || len(exec.got) != 0 {
		t.Fatalf("expected 400 without execution, got %d", w.Code)
	}
}

func TestEmailLinks(t *testing.T) {
	exec := &stubExecutor{resp: command.OK(nil)}
	r := newEngine(exec)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/email/permit?operation=user.email.add&token=abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("permit: expected 200, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/email/deny?token=def", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("deny: expected 200, got %d", w.Code)
	}

	permit, ok := exec.got[0].Command.(handlers.EmailPermit)
	if !ok || permit.Token != "abc" || permit.Operation != "user.email.add" {
		t.Fatalf("unexpected permit command: %+v", exec.got[0].Command)
	}
	deny, ok := exec.got[1].Command.(handlers.EmailDeny)
	if !ok || deny.Token != "def" {
		t.Fatalf("unexpected deny command: %+v", exec.got[1].Command)
	}
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	failing := errors.New("connection refused")
	h := NewHealthHandler(
		WithClock(fake),
		WithReadinessCheck("database", func(context.Context) error { return nil }),
		WithReadinessCheck("redis", func(context.Context) error { return failing }),
	)
	r := gin.New()
	r.GET("/healthz", h.Status)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: expected 503, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["redis"] != failing.Error() {
		t.Fatalf("unexpected checks: %+v", resp.Checks)
	}
}

type stubKeys struct {
	data []byte
	err  error
}

func (s stubKeys) JWKS() ([]byte, error) { return s.data, s.err }

func TestJWKS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", NewJWKSHandler(stubKeys{data: []byte(`{"keys":[]}`)}).Keys)
	r.GET("/broken", NewJWKSHandler(stubKeys{err: errors.New("no key")}).Keys)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK || w.Header().Get("Cache-Control") != jwksCacheControl || w.Body.String() != `{"keys":[]}` {
		t.Fatalf("unexpected jwks response: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
