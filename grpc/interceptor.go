package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sgowda/authlink"
)

// InterceptorConfig configures the session interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Resolver turns session keys into sessions. Required.
	Resolver *authlink.SessionResolver

	// RequireAuth when true rejects requests without a live session.
	// When false, requests proceed but SessionFromContext returns nil.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require a session.
	// Only used when RequireAuth is true. Keys are full method names like
	// "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires a session for every
// method except the listed public ones.
func NewInterceptorConfig(resolver *authlink.SessionResolver, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Resolver:      resolver,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that resolves sessions when present
// but never rejects a request.
func OptionalAuthConfig(resolver *authlink.SessionResolver) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Resolver:      resolver,
		RequireAuth:   false,
		PublicMethods: make(map[string]bool),
	}
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that resolves the
// session key metadata into a session on the handler context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		session, err := resolveSession(ctx, config)
		if err != nil {
			return nil, err
		}
		if session == nil {
			if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
			return handler(ctx, req)
		}
		return handler(contextWithSession(ctx, session), req)
	}
}

// StreamAuthInterceptor returns the stream-side counterpart of
// UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		session, err := resolveSession(ss.Context(), config)
		if err != nil {
			return err
		}
		if session == nil {
			if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
				return status.Error(codes.Unauthenticated, "authentication required")
			}
			return handler(srv, ss)
		}
		return handler(srv, &sessionServerStream{ServerStream: ss, ctx: contextWithSession(ss.Context(), session)})
	}
}

// resolveSession maps resolver outcomes to gRPC semantics: expired sessions
// are Unauthenticated, storage failures are Internal, absence is nil.
func resolveSession(ctx context.Context, config *InterceptorConfig) (*authlink.ResolvedSession, error) {
	key := sessionKeyFromIncoming(ctx, config.Config)
	if key == "" {
		return nil, nil
	}
	session, err := config.Resolver.ResolveSession(ctx, key)
	if err != nil {
		if errors.Is(err, authlink.ErrSessionExpired) {
			return nil, status.Error(codes.Unauthenticated, "session expired")
		}
		slog.Error("Session resolution failed", "error", err)
		return nil, status.Error(codes.Internal, "session resolution failed")
	}
	return session, nil
}

type sessionServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *sessionServerStream) Context() context.Context { return s.ctx }
