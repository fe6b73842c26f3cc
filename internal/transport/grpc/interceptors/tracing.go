package interceptors

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// TracingOptions customises the OpenTelemetry stats handlers.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	Additional     []otelgrpc.Option
}

func (o TracingOptions) options() []otelgrpc.Option {
	options := make([]otelgrpc.Option, 0, len(o.Additional)+2)
	if o.TracerProvider != nil {
		options = append(options, otelgrpc.WithTracerProvider(o.TracerProvider))
	}
	if o.Propagators != nil {
		options = append(options, otelgrpc.WithPropagators(o.Propagators))
	}
	return append(options, o.Additional...)
}

// NewServerTracing builds the server-side stats handler that opens a span per call.
func NewServerTracing(opts TracingOptions) stats.Handler {
	return otelgrpc.NewServerHandler(opts.options()...)
}

// NewClientTracing builds the client-side stats handler that propagates trace context.
func NewClientTracing(opts TracingOptions) stats.Handler {
	return otelgrpc.NewClientHandler(opts.options()...)
}
