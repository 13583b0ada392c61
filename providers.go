package authlink

import (
	"context"
	"net/url"
	"time"
)

// Method is the capability discriminant every provider variant is tagged
// with. Dispatch sites switch over the concrete provider type; Method exists
// so registries and logs can name the variant without reflection.
type Method string

const (
	MethodOAuth2    Method = "oauth2"
	MethodMagicLink Method = "magiclink"
	MethodAPIKey    Method = "apikey"
)

// Token is the credential material returned by an OAuth2 code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshedToken is the result of an OAuth2 refresh. RefreshToken is empty
// when the provider chose not to rotate it; the caller must then retain the
// previously stored value.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ProviderUser identifies a user as the provider knows them. Email is only
// populated by authentication-variant providers.
type ProviderUser struct {
	AccountID string
	Email     string
}

// OAuth2AuthenticationProvider performs sign-in against an OAuth2 identity
// provider: it identifies the user by resolving an email.
type OAuth2AuthenticationProvider interface {
	Method() Method
	AuthenticationURL(ctx context.Context, redirectURI, state string) (*url.URL, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)
	FetchUser(ctx context.Context, accessToken string) (*ProviderUser, error)
	RefreshToken(ctx context.Context, refreshToken string) (*RefreshedToken, error)
}

// OAuth2AuthorizationProvider links an external account to an existing user.
// Same wire shape as authentication, but the flow never resolves an email;
// it attaches to a known user instead of identifying one.
type OAuth2AuthorizationProvider interface {
	Method() Method
	AuthorizationURL(ctx context.Context, redirectURI, state string) (*url.URL, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)
	FetchUser(ctx context.Context, accessToken string) (*ProviderUser, error)
	RefreshToken(ctx context.Context, refreshToken string) (*RefreshedToken, error)
}

// MagicLinkProvider delivers a single-use sign-in link over email.
type MagicLinkProvider interface {
	Method() Method
	SendEmail(ctx context.Context, email, url string) error
}

// APIKeyProvider verifies a user-supplied API key and resolves the account
// it belongs to. APIKeyURL is a human-facing page where keys are obtained.
type APIKeyProvider interface {
	Method() Method
	APIKeyURL() string
	FetchUser(ctx context.Context, apiKey string) (*ProviderUser, error)
}

// =============================================================================
// Factories
// =============================================================================
//
// The factories below build providers from plain functions, mirroring how
// concrete packages (oauth2, magiclink) assemble them. A factory performs no
// I/O; every network call happens when an operation is invoked.

// OAuth2AuthenticationConfig supplies the operations for an
// OAuth2AuthenticationProvider built via NewOAuth2AuthenticationProvider.
type OAuth2AuthenticationConfig struct {
	AuthenticationURL func(ctx context.Context, redirectURI, state string) (*url.URL, error)
	ExchangeCode      func(ctx context.Context, code, redirectURI string) (*Token, error)
	FetchUser         func(ctx context.Context, accessToken string) (*ProviderUser, error)
	RefreshToken      func(ctx context.Context, refreshToken string) (*RefreshedToken, error)
}

type oauth2AuthenticationProvider struct {
	cfg OAuth2AuthenticationConfig
}

func (p *oauth2AuthenticationProvider) Method() Method { return MethodOAuth2 }

func (p *oauth2AuthenticationProvider) AuthenticationURL(ctx context.Context, redirectURI, state string) (*url.URL, error) {
	return p.cfg.AuthenticationURL(ctx, redirectURI, state)
}

func (p *oauth2AuthenticationProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	return p.cfg.ExchangeCode(ctx, code, redirectURI)
}

func (p *oauth2AuthenticationProvider) FetchUser(ctx context.Context, accessToken string) (*ProviderUser, error) {
	return p.cfg.FetchUser(ctx, accessToken)
}

func (p *oauth2AuthenticationProvider) RefreshToken(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	return p.cfg.RefreshToken(ctx, refreshToken)
}

// NewOAuth2AuthenticationProvider tags the given operations as an oauth2
// authentication provider.
func NewOAuth2AuthenticationProvider(cfg OAuth2AuthenticationConfig) OAuth2AuthenticationProvider {
	return &oauth2AuthenticationProvider{cfg: cfg}
}

// OAuth2AuthorizationConfig supplies the operations for an
// OAuth2AuthorizationProvider built via NewOAuth2AuthorizationProvider.
type OAuth2AuthorizationConfig struct {
	AuthorizationURL func(ctx context.Context, redirectURI, state string) (*url.URL, error)
	ExchangeCode     func(ctx context.Context, code, redirectURI string) (*Token, error)
	FetchUser        func(ctx context.Context, accessToken string) (*ProviderUser, error)
	RefreshToken     func(ctx context.Context, refreshToken string) (*RefreshedToken, error)
}

type oauth2AuthorizationProvider struct {
	cfg OAuth2AuthorizationConfig
}

func (p *oauth2AuthorizationProvider) Method() Method { return MethodOAuth2 }

func (p *oauth2AuthorizationProvider) AuthorizationURL(ctx context.Context, redirectURI, state string) (*url.URL, error) {
	return p.cfg.AuthorizationURL(ctx, redirectURI, state)
}

func (p *oauth2AuthorizationProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	return p.cfg.ExchangeCode(ctx, code, redirectURI)
}

func (p *oauth2AuthorizationProvider) FetchUser(ctx context.Context, accessToken string) (*ProviderUser, error) {
	return p.cfg.FetchUser(ctx, accessToken)
}

func (p *oauth2AuthorizationProvider) RefreshToken(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	return p.cfg.RefreshToken(ctx, refreshToken)
}

// NewOAuth2AuthorizationProvider tags the given operations as an oauth2
// authorization provider.
func NewOAuth2AuthorizationProvider(cfg OAuth2AuthorizationConfig) OAuth2AuthorizationProvider {
	return &oauth2AuthorizationProvider{cfg: cfg}
}

// MagicLinkConfig supplies the send operation for a MagicLinkProvider.
type MagicLinkConfig struct {
	SendEmail func(ctx context.Context, email, url string) error
}

type magicLinkProvider struct {
	cfg MagicLinkConfig
}

func (p *magicLinkProvider) Method() Method { return MethodMagicLink }

func (p *magicLinkProvider) SendEmail(ctx context.Context, email, url string) error {
	return p.cfg.SendEmail(ctx, email, url)
}

// NewMagicLinkProvider tags the given send operation as a magic-link
// provider.
func NewMagicLinkProvider(cfg MagicLinkConfig) MagicLinkProvider {
	return &magicLinkProvider{cfg: cfg}
}

// APIKeyConfig supplies the operations for an APIKeyProvider.
type APIKeyConfig struct {
	APIKeyURL string
	FetchUser func(ctx context.Context, apiKey string) (*ProviderUser, error)
}

type apiKeyProvider struct {
	cfg APIKeyConfig
}

func (p *apiKeyProvider) Method() Method    { return MethodAPIKey }
func (p *apiKeyProvider) APIKeyURL() string { return p.cfg.APIKeyURL }

func (p *apiKeyProvider) FetchUser(ctx context.Context, apiKey string) (*ProviderUser, error) {
	return p.cfg.FetchUser(ctx, apiKey)
}

// NewAPIKeyProvider tags the given operations as an api-key provider.
func NewAPIKeyProvider(cfg APIKeyConfig) APIKeyProvider {
	return &apiKeyProvider{cfg: cfg}
}
