package authlink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sgowda/authlink"
	"github.com/sgowda/authlink/stores/fs"
)

func sessionFixture(t *testing.T) (*fs.Store, *authlink.User) {
	t.Helper()
	store := newTestStore(t)
	user, err := store.CreateUser(context.Background(), "sess@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return store, user
}

func TestResolveSessionAbsent(t *testing.T) {
	store, _ := sessionFixture(t)
	resolver := &authlink.SessionResolver{Database: store, Refresher: &authlink.TokenRefresher{Database: store}}

	for _, key := range []string{"", "unknown-key"} {
		session, err := resolver.ResolveSession(context.Background(), key)
		if err != nil {
			t.Errorf("ResolveSession(%q) error: %v", key, err)
		}
		if session != nil {
			t.Errorf("ResolveSession(%q) = %+v, want nil", key, session)
		}
	}
}

func TestResolveSessionExpired(t *testing.T) {
	store, user := sessionFixture(t)
	resolver := &authlink.SessionResolver{Database: store, Refresher: &authlink.TokenRefresher{Database: store}}

	session, err := store.CreateSession(context.Background(), user.ID, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	_, err = resolver.ResolveSession(context.Background(), session.Key)
	if !errors.Is(err, authlink.ErrSessionExpired) {
		t.Errorf("Expired session error = %v", err)
	}
}

func TestResolveSessionProjectsAccounts(t *testing.T) {
	store, user := sessionFixture(t)
	ctx := context.Background()

	if _, err := store.CreateOAuth2AuthenticationAccount(ctx, &authlink.OAuth2Account{
		UserID: user.ID, Provider: "acme", AccountID: "a1",
		AccessToken: "secret-at", RefreshToken: "secret-rt",
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Failed to plant account: %v", err)
	}
	if _, err := store.CreateAPIKeyAuthorizationAccount(ctx, &authlink.APIKeyAccount{
		UserID: user.ID, Provider: "keysvc", AccountID: "k1", APIKey: "secret-key",
	}); err != nil {
		t.Fatalf("Failed to plant api key account: %v", err)
	}

	session, err := store.CreateSession(ctx, user.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	resolver := &authlink.SessionResolver{Database: store, Refresher: &authlink.TokenRefresher{Database: store}}
	resolved, err := resolver.ResolveSession(ctx, session.Key)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if resolved.UserID != user.ID {
		t.Errorf("UserID = %q", resolved.UserID)
	}
	if len(resolved.Accounts) != 2 {
		t.Fatalf("Accounts = %+v, want 2", resolved.Accounts)
	}

	byProvider := map[string]authlink.ResolvedAccount{}
	for _, acct := range resolved.Accounts {
		byProvider[acct.Provider] = acct
	}
	if acct := byProvider["acme"]; acct.Kind != authlink.KindAuthentication || acct.AccountID != "a1" {
		t.Errorf("OAuth2 account projection wrong: %+v", acct)
	}
	if acct := byProvider["keysvc"]; acct.Kind != authlink.KindAPIKey || acct.AccountID != "k1" {
		t.Errorf("API key account projection wrong: %+v", acct)
	}
}

func TestResolveSessionRefreshesExpiredAccounts(t *testing.T) {
	store, user := sessionFixture(t)
	ctx := context.Background()

	if _, err := store.CreateOAuth2AuthorizationAccount(ctx, &authlink.OAuth2Account{
		UserID: user.ID, Provider: "acme", AccountID: "stale",
		AccessToken: "old", RefreshToken: "rt",
		ExpiresAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Failed to plant account: %v", err)
	}

	refreshed := false
	provider := authlink.NewOAuth2AuthorizationProvider(authlink.OAuth2AuthorizationConfig{
		RefreshToken: func(ctx context.Context, refreshToken string) (*authlink.RefreshedToken, error) {
			refreshed = true
			return &authlink.RefreshedToken{AccessToken: "fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	})
	resolver := &authlink.SessionResolver{
		Database: store,
		Refresher: &authlink.TokenRefresher{
			Database:               store,
			AuthorizationProviders: map[string]authlink.OAuth2AuthorizationProvider{"acme": provider},
		},
	}

	session, err := store.CreateSession(ctx, user.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	resolved, err := resolver.ResolveSession(ctx, session.Key)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if !refreshed {
		t.Error("Expired account was not refreshed")
	}
	if len(resolved.Accounts) != 1 || resolved.Accounts[0].AccountID != "stale" {
		t.Errorf("Accounts = %+v", resolved.Accounts)
	}

	stored, err := store.GetOAuth2AuthorizationAccount(ctx, authlink.AccountKey{
		UserID: user.ID, Provider: "acme", AccountID: "stale",
	})
	if err != nil {
		t.Fatalf("Stored account lookup failed: %v", err)
	}
	if stored.AccessToken != "fresh" {
		t.Errorf("Refreshed token not persisted: %q", stored.AccessToken)
	}
}

func TestResolveSessionDropsRevokedAccounts(t *testing.T) {
	store, user := sessionFixture(t)
	ctx := context.Background()

	if _, err := store.CreateOAuth2AuthorizationAccount(ctx, &authlink.OAuth2Account{
		UserID: user.ID, Provider: "acme", AccountID: "revoked",
		AccessToken: "old", RefreshToken: "rt",
		ExpiresAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Failed to plant account: %v", err)
	}

	provider := authlink.NewOAuth2AuthorizationProvider(authlink.OAuth2AuthorizationConfig{
		RefreshToken: func(ctx context.Context, refreshToken string) (*authlink.RefreshedToken, error) {
			return nil, errors.New("invalid_grant")
		},
	})
	resolver := &authlink.SessionResolver{
		Database: store,
		Refresher: &authlink.TokenRefresher{
			Database:               store,
			AuthorizationProviders: map[string]authlink.OAuth2AuthorizationProvider{"acme": provider},
		},
	}

	session, err := store.CreateSession(ctx, user.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// A revoked grant drops the account link but the session survives.
	resolved, err := resolver.ResolveSession(ctx, session.Key)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if len(resolved.Accounts) != 0 {
		t.Errorf("Accounts = %+v, want none", resolved.Accounts)
	}
	if _, err := store.GetOAuth2AuthorizationAccount(ctx, authlink.AccountKey{
		UserID: user.ID, Provider: "acme", AccountID: "revoked",
	}); !errors.Is(err, authlink.ErrAccountNotFound) {
		t.Errorf("Revoked account should be deleted, got %v", err)
	}
}
