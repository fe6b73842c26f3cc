package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/infra/config"
)

func TestMetricsObserveCommand(t *testing.T) {
	m := NewMetrics()

	m.ObserveCommand("user.get", "OK", 10*time.Millisecond)
	m.ObserveCommand("user.get", "OK", 20*time.Millisecond)
	m.ObserveCommand("user.get", "SECURITY_POLICY_DENIED", time.Millisecond)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("user.get", "OK")); got != 2 {
		t.Fatalf("expected 2 successful commands, got %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("user.get", "SECURITY_POLICY_DENIED")); got != 1 {
		t.Fatalf("expected 1 denied command, got %v", got)
	}
	if got := testutil.CollectAndCount(m.commandDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("x", "OK", time.Second)
	m.ObserveLogin("user", "ok")
	m.SetPaginators(3)
}

func TestMetricsGaugesAndCounters(t *testing.T) {
	m := NewMetrics()
	m.SetPaginators(4)
	m.ObserveLogin("admin", "banned")

	if got := testutil.ToFloat64(m.paginators); got != 4 {
		t.Fatalf("expected gauge 4, got %v", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("admin", "banned")); got != 1 {
		t.Fatalf("expected 1 banned login, got %v", got)
	}
}

func TestTracerProviderDisabledWithoutEndpoint(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), config.TelemetrySettings{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}
	_, span := tp.Tracer(TracerName).Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatal("expected no-op span without exporter")
	}
	span.End()
	if tp.Provider() == nil {
		t.Fatal("expected a no-op provider")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
