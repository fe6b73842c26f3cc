package transportgrpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/transport/bearer"
	"github.com/arklim/identity-server/internal/transport/codec"
	grpcinterceptors "github.com/arklim/identity-server/internal/transport/grpc/interceptors"
)

// Executor runs a decoded request through the command pipeline.
type Executor interface {
	Execute(ctx context.Context, req command.Request) command.Response
}

// Tokens verifies access tokens and publishes the verification keys.
type Tokens interface {
	bearer.TokenParser
	JWKS() ([]byte, error)
}

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Executor       Executor
	Tokens         Tokens
	Issuer         string
	Clock          clock.Clock
	Logger         *zap.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
}

// NewServer wires the Commands service with authentication, metrics and tracing.
func NewServer(deps ServerDependencies) (*grpc.Server, error) {
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	unaryInterceptors := make([]grpc.UnaryServerInterceptor, 0, 2)
	if deps.Registerer != nil {
		metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: deps.Registerer})
		if err != nil {
			return nil, fmt.Errorf("grpc metrics: %w", err)
		}
		unaryInterceptors = append(unaryInterceptors, metrics.UnaryServerInterceptor())
	}
	if deps.Tokens != nil {
		auth := grpcinterceptors.NewAuthInterceptor(deps.Tokens, grpcinterceptors.AuthOptions{
			Issuer: deps.Issuer,
			Clock:  deps.Clock,
			Logger: log,
		})
		unaryInterceptors = append(unaryInterceptors, auth.UnaryServerInterceptor())
	}

	server := grpc.NewServer(
		grpc.StatsHandler(grpcinterceptors.NewServerTracing(grpcinterceptors.TracingOptions{TracerProvider: deps.TracerProvider})),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
	)

	RegisterCommandsServer(server, NewCommandServer(deps.Executor, deps.Tokens, log))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// Reflection lists the services for grpcurl; Commands frames are CBOR, not protobuf.
	reflection.Register(server)

	return server, nil
}

// CommandServer implements CommandsServer over the command pipeline.
type CommandServer struct {
	executor Executor
	keys     Tokens
	logger   *zap.Logger
}

// NewCommandServer constructs a CommandServer instance.
func NewCommandServer(executor Executor, keys Tokens, log *zap.Logger) *CommandServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandServer{executor: executor, keys: keys, logger: log}
}

// Execute decodes a CBOR envelope and runs it. Decoding failures are answered with an
// error reply rather than a gRPC status.
func (s *CommandServer) Execute(ctx context.Context, in *Frame) (*Frame, error) {
	req, err := codec.Decode(codec.CBOR, *in)
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	ctx = logger.ContextWithRequestID(ctx, req.RequestID.String())

	if err != nil {
		s.logger.Debug("rejected gRPC frame", zap.String("request_id", req.RequestID.String()), zap.Error(err))
		return s.encode(codec.RejectReply(req.RequestID, req.CorrelationID, err))
	}

	if ref, ok := grpcinterceptors.PrincipalFromContext(ctx); ok {
		req.Principal = ref
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		req.RemoteAddress = remoteHost(p.Addr)
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			req.UserAgent = ua[0]
		}
	}

	return s.encode(codec.NewReply(s.executor.Execute(ctx, req)))
}

// Keys returns the JSON Web Key Set used for offline JWT validation.
func (s *CommandServer) Keys(context.Context, *KeysRequest) (*KeysReply, error) {
	if s == nil || s.keys == nil {
		return nil, status.Error(codes.Unavailable, "jwks not available")
	}

	jwks, err := s.keys.JWKS()
	if err != nil {
		s.logger.Error("failed to generate JWKS", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to generate jwks")
	}
	return &KeysReply{JWKS: string(jwks)}, nil
}

func (s *CommandServer) encode(reply codec.Reply) (*Frame, error) {
	data, err := codec.CBOR.Marshal(reply)
	if err != nil {
		s.logger.Error("failed to encode reply", zap.String("request_id", reply.RequestID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode reply")
	}
	frame := Frame(data)
	return &frame, nil
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
