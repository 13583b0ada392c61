package authlink

import (
	"context"
	"time"
)

// User is the identity anchor. Users are created on first successful
// authentication from an unrecognized email and never mutated or deleted by
// this package.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a time-bounded proof of user identity. Key is the opaque bearer
// value held by the client; storage generates it. Sessions are immutable:
// re-authentication creates a new one.
type Session struct {
	Key       string      `json:"key"`
	UserID    string      `json:"user_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      SessionUser `json:"user"`
}

// Expired reports whether the session's expiry has passed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionUser carries the linked accounts loaded alongside a session.
type SessionUser struct {
	OAuth2AuthenticationAccounts []OAuth2Account `json:"oauth2_authentication_accounts"`
	OAuth2AuthorizationAccounts  []OAuth2Account `json:"oauth2_authorization_accounts"`
	APIKeyAuthorizationAccounts  []APIKeyAccount `json:"apikey_authorization_accounts"`
}

// OAuth2Account binds a user to an external OAuth2 identity, for either the
// authentication or the authorization kind. (UserID, Provider, AccountID) is
// the unique key per account table.
type OAuth2Account struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccountID    string    `json:"account_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the account's access token needs a refresh.
func (a *OAuth2Account) Expired() bool {
	if a.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(a.ExpiresAt)
}

// APIKeyAccount binds a user to an external provider identity through an
// API key instead of OAuth2 tokens. Same unique key as OAuth2Account.
type APIKeyAccount struct {
	UserID    string `json:"user_id"`
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
	APIKey    string `json:"api_key"`
}

// AccountKey is the composite identity of a linked account of any kind.
type AccountKey struct {
	UserID    string
	Provider  string
	AccountID string
}

// AccountKind selects which linked-account table an operation targets.
type AccountKind string

const (
	KindAuthentication AccountKind = "authentication"
	KindAuthorization  AccountKind = "authorization"
	KindAPIKey         AccountKind = "apikey"
)

// AuthenticationRequest is the pending record for an OAuth2 sign-in flow,
// keyed by its unguessable state token.
type AuthenticationRequest struct {
	Token       string    `json:"token"`
	CallbackURL string    `json:"callback_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the request may no longer be honored.
func (r *AuthenticationRequest) Expired() bool {
	return time.Now().After(r.ExpiresAt)
}

// AuthorizationRequest is the pending record for an OAuth2 account-linking
// flow. UserID names the existing user the new link attaches to, so the
// completion half needs no session lookup.
type AuthorizationRequest struct {
	Token       string    `json:"token"`
	UserID      string    `json:"user_id"`
	CallbackURL string    `json:"callback_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (r *AuthorizationRequest) Expired() bool {
	return time.Now().After(r.ExpiresAt)
}

// MagicLinkRequest is the pending record for a magic-link email, keyed by
// the token embedded in the emailed URL.
type MagicLinkRequest struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *MagicLinkRequest) Expired() bool {
	return time.Now().After(r.ExpiresAt)
}

// DatabaseProvider is the persistence contract the orchestrator runs
// against. The core owns no storage; it defines entity shapes and the
// transition rules, and re-reads from storage on every call.
//
// Get operations on accounts and requests return ErrAccountNotFound or
// ErrRequestNotFound (possibly wrapped) when no record matches. GetUserByEmail
// and GetSession return (nil, nil) when absent, mirroring a nullable lookup.
// Create operations fail when the insert produced no row; in particular,
// account creates fail on a duplicate (userId, provider, accountId) triple.
type DatabaseProvider interface {
	CreateOAuth2AuthenticationRequest(ctx context.Context, req *AuthenticationRequest) (*AuthenticationRequest, error)
	GetOAuth2AuthenticationRequest(ctx context.Context, token string) (*AuthenticationRequest, error)
	CreateOAuth2AuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*AuthorizationRequest, error)
	GetOAuth2AuthorizationRequest(ctx context.Context, token string) (*AuthorizationRequest, error)
	CreateMagicLinkRequest(ctx context.Context, req *MagicLinkRequest) (*MagicLinkRequest, error)

	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, email string) (*User, error)

	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*Session, error)
	GetSession(ctx context.Context, key string) (*Session, error)

	GetOAuth2AuthenticationAccount(ctx context.Context, key AccountKey) (*OAuth2Account, error)
	CreateOAuth2AuthenticationAccount(ctx context.Context, account *OAuth2Account) (*OAuth2Account, error)
	UpdateOAuth2AuthenticationAccount(ctx context.Context, account *OAuth2Account) (*OAuth2Account, error)
	DeleteOAuth2AuthenticationAccount(ctx context.Context, key AccountKey) error

	GetOAuth2AuthorizationAccount(ctx context.Context, key AccountKey) (*OAuth2Account, error)
	CreateOAuth2AuthorizationAccount(ctx context.Context, account *OAuth2Account) (*OAuth2Account, error)
	UpdateOAuth2AuthorizationAccount(ctx context.Context, account *OAuth2Account) (*OAuth2Account, error)
	DeleteOAuth2AuthorizationAccount(ctx context.Context, key AccountKey) error

	CreateAPIKeyAuthorizationAccount(ctx context.Context, account *APIKeyAccount) (*APIKeyAccount, error)
	DeleteAPIKeyAuthorizationAccount(ctx context.Context, key AccountKey) error
}
