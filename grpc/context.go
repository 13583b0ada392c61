// Package grpc carries authlink sessions across gRPC boundaries: clients
// attach the opaque session key as metadata, the server interceptor resolves
// it and makes the session available on the handler context.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/sgowda/authlink"
)

// DefaultMetadataKeySessionKey is the default metadata key carrying the
// opaque session key.
const DefaultMetadataKeySessionKey = "x-session-key"

type sessionContextKey struct{}

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeySessionKey is the metadata key the session key travels
	// under. Defaults to "x-session-key".
	MetadataKeySessionKey string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeySessionKey: DefaultMetadataKeySessionKey}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionKey == "" {
		c.MetadataKeySessionKey = DefaultMetadataKeySessionKey
	}
}

// SessionFromContext returns the session resolved by the interceptor, or nil
// when the request carried none.
func SessionFromContext(ctx context.Context) *authlink.ResolvedSession {
	if v := ctx.Value(sessionContextKey{}); v != nil {
		if session, ok := v.(*authlink.ResolvedSession); ok {
			return session
		}
	}
	return nil
}

// UserIDFromContext returns the session's user id, or empty when the request
// is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if session := SessionFromContext(ctx); session != nil {
		return session.UserID
	}
	return ""
}

// IsAuthenticated reports whether the context carries a live session.
func IsAuthenticated(ctx context.Context) bool {
	return SessionFromContext(ctx) != nil
}

func contextWithSession(ctx context.Context, session *authlink.ResolvedSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionKeyToOutgoingContext attaches the session key to outgoing metadata.
func SessionKeyToOutgoingContext(ctx context.Context, sessionKey string) context.Context {
	return SessionKeyToOutgoingContextWithKey(ctx, sessionKey, DefaultMetadataKeySessionKey)
}

// SessionKeyToOutgoingContextWithKey attaches the session key under a custom
// metadata key.
func SessionKeyToOutgoingContextWithKey(ctx context.Context, sessionKey, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, sessionKey)
}

// sessionKeyFromIncoming extracts the raw session key from incoming metadata.
func sessionKeyFromIncoming(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionKey); len(values) > 0 {
		return values[0]
	}
	return ""
}
