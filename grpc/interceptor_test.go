package grpc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/sgowda/authlink"
	authgrpc "github.com/sgowda/authlink/grpc"
	"github.com/sgowda/authlink/stores/fs"
)

func newResolver(t *testing.T) (*authlink.SessionResolver, *fs.Store) {
	t.Helper()
	store, err := fs.New(filepath.Join(t.TempDir(), "authlink.json"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return &authlink.SessionResolver{
		Database:  store,
		Refresher: &authlink.TokenRefresher{Database: store},
	}, store
}

func newSessionKey(t *testing.T, store *fs.Store, expiresAt time.Time) string {
	t.Helper()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, "grpc@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	session, err := store.CreateSession(ctx, user.ID, expiresAt)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session.Key
}

func incomingContext(sessionKey string) context.Context {
	if sessionKey == "" {
		return context.Background()
	}
	md := metadata.Pairs(authgrpc.DefaultMetadataKeySessionKey, sessionKey)
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestUnaryInterceptorResolvesSession(t *testing.T) {
	resolver, store := newResolver(t)
	key := newSessionKey(t, store, time.Now().Add(time.Hour))

	interceptor := authgrpc.UnaryAuthInterceptor(authgrpc.NewInterceptorConfig(resolver))

	var seen *authlink.ResolvedSession
	handler := func(ctx context.Context, req any) (any, error) {
		seen = authgrpc.SessionFromContext(ctx)
		return "ok", nil
	}

	resp, err := interceptor(incomingContext(key), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, handler)
	if err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}
	if resp != "ok" {
		t.Errorf("Response = %v", resp)
	}
	if seen == nil {
		t.Fatal("Handler saw no session")
	}
	if seen.UserID == "" {
		t.Error("Session has no user")
	}
	if seen.Key != key {
		t.Errorf("Session key = %q, want %q", seen.Key, key)
	}
}

func TestUnaryInterceptorRequiresSession(t *testing.T) {
	resolver, _ := newResolver(t)
	interceptor := authgrpc.UnaryAuthInterceptor(authgrpc.NewInterceptorConfig(resolver))

	_, err := interceptor(incomingContext(""), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, func(ctx context.Context, req any) (any, error) {
		t.Error("Handler should not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Error = %v, want Unauthenticated", err)
	}
}

func TestUnaryInterceptorPublicMethod(t *testing.T) {
	resolver, _ := newResolver(t)
	interceptor := authgrpc.UnaryAuthInterceptor(authgrpc.NewInterceptorConfig(resolver, "/svc/Health"))

	ran := false
	_, err := interceptor(incomingContext(""), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Health"}, func(ctx context.Context, req any) (any, error) {
		ran = true
		if authgrpc.SessionFromContext(ctx) != nil {
			t.Error("Public method should see no session")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}
	if !ran {
		t.Error("Handler did not run")
	}
}

func TestUnaryInterceptorExpiredSession(t *testing.T) {
	resolver, store := newResolver(t)
	key := newSessionKey(t, store, time.Now().Add(-time.Minute))

	interceptor := authgrpc.UnaryAuthInterceptor(authgrpc.NewInterceptorConfig(resolver))

	_, err := interceptor(incomingContext(key), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, func(ctx context.Context, req any) (any, error) {
		t.Error("Handler should not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Error = %v, want Unauthenticated", err)
	}
}

func TestUnaryInterceptorOptionalAuth(t *testing.T) {
	resolver, _ := newResolver(t)
	interceptor := authgrpc.UnaryAuthInterceptor(authgrpc.OptionalAuthConfig(resolver))

	ran := false
	_, err := interceptor(incomingContext(""), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Get"}, func(ctx context.Context, req any) (any, error) {
		ran = true
		if authgrpc.IsAuthenticated(ctx) {
			t.Error("Context should not be authenticated")
		}
		if authgrpc.UserIDFromContext(ctx) != "" {
			t.Error("UserIDFromContext should be empty")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}
	if !ran {
		t.Error("Handler did not run")
	}
}

type testServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *testServerStream) Context() context.Context { return s.ctx }

func TestStreamInterceptorResolvesSession(t *testing.T) {
	resolver, store := newResolver(t)
	key := newSessionKey(t, store, time.Now().Add(time.Hour))

	interceptor := authgrpc.StreamAuthInterceptor(authgrpc.NewInterceptorConfig(resolver))

	var seen *authlink.ResolvedSession
	err := interceptor(nil, &testServerStream{ctx: incomingContext(key)}, &grpc.StreamServerInfo{FullMethod: "/svc/Watch"}, func(srv any, ss grpc.ServerStream) error {
		seen = authgrpc.SessionFromContext(ss.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}
	if seen == nil || seen.Key != key {
		t.Errorf("Stream session = %+v", seen)
	}
}

func TestSessionKeyToOutgoingContext(t *testing.T) {
	ctx := authgrpc.SessionKeyToOutgoingContext(context.Background(), "key-123")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("No outgoing metadata")
	}
	if values := md.Get(authgrpc.DefaultMetadataKeySessionKey); len(values) != 1 || values[0] != "key-123" {
		t.Errorf("Metadata = %v", values)
	}
}
