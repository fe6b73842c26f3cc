package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/transport/bearer"
)

const authorizationKey = "authorization"

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	Issuer string
	Clock  clock.Clock
	Logger *zap.Logger
}

// AuthInterceptor resolves optional bearer tokens into principal references. Calls
// without a token continue anonymously; the pipeline decides whether a command needs a
// principal.
type AuthInterceptor struct {
	parser bearer.TokenParser
	issuer string
	clock  clock.Clock
	logger *zap.Logger
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(parser bearer.TokenParser, opts AuthOptions) *AuthInterceptor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &AuthInterceptor{parser: parser, issuer: opts.Issuer, clock: clk, logger: logger}
}

// UnaryServerInterceptor returns a gRPC unary interceptor that verifies access tokens.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if ai == nil || ai.parser == nil {
			return handler(ctx, req)
		}

		raw, err := authorizationFromMetadata(ctx)
		if err != nil {
			return handler(ctx, req)
		}

		token, err := bearer.FromHeader(raw)
		if err != nil {
			ai.logger.Warn("gRPC authentication failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid authorization format: expected 'Bearer <token>'")
		}

		ref, err := bearer.Resolve(ai.parser, token, ai.issuer, ai.clock.Now())
		if err != nil {
			ai.logger.Warn("gRPC token validation failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid access token")
		}

		return handler(WithPrincipal(ctx, ref), req)
	}
}

type principalContextKey struct{}

// WithPrincipal returns a derived context carrying the caller's principal.
func WithPrincipal(ctx context.Context, ref *command.PrincipalRef) context.Context {
	if ref == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, ref)
}

// PrincipalFromContext extracts the caller's principal when one was authenticated.
func PrincipalFromContext(ctx context.Context) (*command.PrincipalRef, bool) {
	if ctx == nil {
		return nil, false
	}
	ref, ok := ctx.Value(principalContextKey{}).(*command.PrincipalRef)
	return ref, ok && ref != nil
}

var errNoAuthorization = errors.New("no authorization metadata")

func authorizationFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errNoAuthorization
	}
	for _, value := range md.Get(authorizationKey) {
		if strings.TrimSpace(value) != "" {
			return value, nil
		}
	}
	return "", errNoAuthorization
}
