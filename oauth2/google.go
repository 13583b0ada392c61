package oauth2

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sgowda/authlink"
)

// Scopes requested for Google sign-in. Authorization providers pass their
// own scope list instead.
var GoogleSignInScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"

// GoogleConfig configures the Google providers.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string

	// Scopes for the authorization variant. Ignored for authentication,
	// which always uses GoogleSignInScopes.
	Scopes []string

	// HTTPClient overrides the client used for user info calls.
	HTTPClient *http.Client
}

func newGoogleClient(cfg GoogleConfig, scopes []string) *client {
	return &client{
		name: "google",
		http: cfg.HTTPClient,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

type googleUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func googleFetchUser(c *client) func(ctx context.Context, accessToken string) (*authlink.ProviderUser, error) {
	return func(ctx context.Context, accessToken string) (*authlink.ProviderUser, error) {
		var info googleUserInfo
		if err := c.getJSON(ctx, googleUserInfoURL, accessToken, &info, nil); err != nil {
			return nil, err
		}
		return &authlink.ProviderUser{AccountID: info.ID, Email: info.Email}, nil
	}
}

// NewGoogleAuthentication builds a Google sign-in provider. offline access
// plus select_account keeps re-login frictionless while still yielding a
// refresh token on first consent.
func NewGoogleAuthentication(cfg GoogleConfig) authlink.OAuth2AuthenticationProvider {
	c := newGoogleClient(cfg, GoogleSignInScopes)
	return authlink.NewOAuth2AuthenticationProvider(authlink.OAuth2AuthenticationConfig{
		AuthenticationURL: func(ctx context.Context, redirectURI, state string) (*url.URL, error) {
			return c.authCodeURL(redirectURI, state,
				oauth2.AccessTypeOffline,
				oauth2.SetAuthURLParam("prompt", "select_account"))
		},
		ExchangeCode: c.exchange,
		FetchUser:    googleFetchUser(c),
		RefreshToken: c.refresh,
	})
}

// NewGoogleAuthorization builds a Google account-linking provider with the
// configured scopes. prompt=consent forces a refresh token even for users
// who consented before.
func NewGoogleAuthorization(cfg GoogleConfig) authlink.OAuth2AuthorizationProvider {
	c := newGoogleClient(cfg, cfg.Scopes)
	return authlink.NewOAuth2AuthorizationProvider(authlink.OAuth2AuthorizationConfig{
		AuthorizationURL: func(ctx context.Context, redirectURI, state string) (*url.URL, error) {
			return c.authCodeURL(redirectURI, state,
				oauth2.AccessTypeOffline,
				oauth2.SetAuthURLParam("prompt", "consent"))
		},
		ExchangeCode: c.exchange,
		FetchUser:    googleFetchUser(c),
		RefreshToken: c.refresh,
	})
}
