package authlink

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Flow method names as they appear in callback paths.
const (
	FlowAuthentication = "authentication"
	FlowAuthorization  = "authorization"
)

// Config wires an Auth orchestrator. Database and AuthURL are required;
// provider maps may be nil for categories the application does not use.
type Config struct {
	// Database persists users, sessions, linked accounts and pending
	// requests. The orchestrator owns no storage of its own.
	Database DatabaseProvider

	// AuthURL is the externally reachable base URL used to build provider
	// redirect URIs, e.g. "https://yourapp.com".
	AuthURL string

	// Providers per category, keyed by the name used in URLs and storage.
	OAuth2Authentication map[string]OAuth2AuthenticationProvider
	MagicLink            map[string]MagicLinkProvider
	OAuth2Authorization  map[string]OAuth2AuthorizationProvider
	APIKey               map[string]APIKeyProvider

	// RequestExpiry bounds pending requests. Defaults to 24 hours.
	RequestExpiry time.Duration

	// SessionExpiry bounds new sessions. Defaults to 30 days.
	SessionExpiry time.Duration
}

// Auth is the authentication/authorization flow orchestrator. Each operation
// is a self-contained unit of work: nothing is cached across invocations and
// every call re-reads from storage.
type Auth struct {
	Config

	refresher *TokenRefresher
	resolver  *SessionResolver
}

// New creates an Auth from the given configuration.
func New(cfg Config) *Auth {
	a := &Auth{Config: cfg}
	return a.EnsureDefaults()
}

// EnsureDefaults fills unset configuration with defaults and builds the
// refresh and session-resolution subsystems.
func (a *Auth) EnsureDefaults() *Auth {
	if a.RequestExpiry <= 0 {
		a.RequestExpiry = RequestExpiry
	}
	if a.SessionExpiry <= 0 {
		a.SessionExpiry = SessionExpiry
	}
	a.AuthURL = strings.TrimSuffix(a.AuthURL, "/")
	if a.refresher == nil {
		a.refresher = &TokenRefresher{
			Database:                a.Database,
			AuthenticationProviders: a.OAuth2Authentication,
			AuthorizationProviders:  a.OAuth2Authorization,
		}
	}
	if a.resolver == nil {
		a.resolver = &SessionResolver{
			Database:  a.Database,
			Refresher: a.refresher,
		}
	}
	return a
}

// Refresher exposes the token refresh subsystem.
func (a *Auth) Refresher() *TokenRefresher { return a.refresher }

// redirectURI builds the provider redirect target for a flow method, e.g.
// https://yourapp.com/auth/authentication/google.
func (a *Auth) redirectURI(method, provider string) string {
	return fmt.Sprintf("%s/auth/%s/%s", a.AuthURL, method, provider)
}

// SignIn initiates an OAuth2 sign-in: it persists a pending authentication
// request carrying a fresh state token and returns the provider URL the
// user-agent must be redirected to. callbackURL is where the user lands
// after the flow completes.
func (a *Auth) SignIn(ctx context.Context, provider, callbackURL string) (string, error) {
	p, ok := a.OAuth2Authentication[provider]
	if !ok {
		return "", fmt.Errorf("%w: oauth2 authentication provider %q", ErrProviderNotConfigured, provider)
	}

	state, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}

	if _, err := a.Database.CreateOAuth2AuthenticationRequest(ctx, &AuthenticationRequest{
		Token:       state,
		CallbackURL: callbackURL,
		ExpiresAt:   time.Now().Add(a.RequestExpiry),
	}); err != nil {
		return "", fmt.Errorf("failed to persist authentication request: %w", err)
	}

	u, err := p.AuthenticationURL(ctx, a.redirectURI(FlowAuthentication, provider), state)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// ConnectAuthorizationAccount initiates linking an OAuth2 authorization
// account to an existing user. The pending request carries the userId so the
// completion half needs only the opaque state to know which user to attach
// the new account to.
func (a *Auth) ConnectAuthorizationAccount(ctx context.Context, provider, callbackURL, userID string) (string, error) {
	p, ok := a.OAuth2Authorization[provider]
	if !ok {
		return "", fmt.Errorf("%w: oauth2 authorization provider %q", ErrProviderNotConfigured, provider)
	}

	state, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}

	if _, err := a.Database.CreateOAuth2AuthorizationRequest(ctx, &AuthorizationRequest{
		Token:       state,
		UserID:      userID,
		CallbackURL: callbackURL,
		ExpiresAt:   time.Now().Add(a.RequestExpiry),
	}); err != nil {
		return "", fmt.Errorf("failed to persist authorization request: %w", err)
	}

	u, err := p.AuthorizationURL(ctx, a.redirectURI(FlowAuthorization, provider), state)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// SendMagicLink persists a magic-link pending request and asks the provider
// to email the sign-in URL, which embeds the request token as a query
// parameter.
func (a *Auth) SendMagicLink(ctx context.Context, provider, email string) error {
	p, ok := a.MagicLink[provider]
	if !ok {
		return fmt.Errorf("%w: magic link provider %q", ErrProviderNotConfigured, provider)
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return err
	}

	if _, err := a.Database.CreateMagicLinkRequest(ctx, &MagicLinkRequest{
		Token:     token,
		Email:     email,
		ExpiresAt: time.Now().Add(a.RequestExpiry),
	}); err != nil {
		return fmt.Errorf("failed to persist magic link request: %w", err)
	}

	url := fmt.Sprintf("%s/auth/%s/magiclink/%s?token=%s", a.AuthURL, FlowAuthentication, provider, token)
	if err := p.SendEmail(ctx, email, url); err != nil {
		return err
	}

	log.Printf("Sent magic link via %s to %s", provider, email)
	return nil
}

// ConnectAPIKeyAccount links an api-key authorization account: the key is
// verified with the provider, then persisted under the given user. Unlike
// the OAuth2 flows there is no redirect round-trip, so no pending request is
// issued.
func (a *Auth) ConnectAPIKeyAccount(ctx context.Context, provider, userID, apiKey string) (*APIKeyAccount, error) {
	p, ok := a.APIKey[provider]
	if !ok {
		return nil, fmt.Errorf("%w: api key provider %q", ErrProviderNotConfigured, provider)
	}

	user, err := p.FetchUser(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	return a.Database.CreateAPIKeyAuthorizationAccount(ctx, &APIKeyAccount{
		UserID:    userID,
		Provider:  provider,
		AccountID: user.AccountID,
		APIKey:    apiKey,
	})
}

// DisconnectAccount deletes a linked account of the given kind. Used when a
// user explicitly disconnects a provider.
func (a *Auth) DisconnectAccount(ctx context.Context, kind AccountKind, key AccountKey) error {
	switch kind {
	case KindAuthentication:
		return a.Database.DeleteOAuth2AuthenticationAccount(ctx, key)
	case KindAuthorization:
		return a.Database.DeleteOAuth2AuthorizationAccount(ctx, key)
	case KindAPIKey:
		return a.Database.DeleteAPIKeyAuthorizationAccount(ctx, key)
	default:
		return fmt.Errorf("unknown account kind %q", kind)
	}
}

// RefreshAccountToken delegates to the token refresh subsystem.
func (a *Auth) RefreshAccountToken(ctx context.Context, kind AccountKind, key AccountKey) (*OAuth2Account, error) {
	return a.refresher.RefreshAccountToken(ctx, kind, key)
}

// ResolveSession delegates to the session resolution subsystem.
func (a *Auth) ResolveSession(ctx context.Context, key string) (*ResolvedSession, error) {
	return a.resolver.ResolveSession(ctx, key)
}
