package interceptors

import (
	"testing"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTracingHandlersBuild(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	opts := TracingOptions{TracerProvider: tp, Propagators: propagation.TraceContext{}}
	if NewServerTracing(opts) == nil {
		t.Fatalf("expected a server stats handler")
	}
	if NewClientTracing(opts) == nil {
		t.Fatalf("expected a client stats handler")
	}
}
