package oauth2

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sgowda/authlink"
)

// Scopes requested for GitHub sign-in.
var GitHubSignInScopes = []string{"read:user", "user:email"}

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

var githubAcceptHeader = map[string]string{"Accept": "application/vnd.github.v3+json"}

// GitHubConfig configures the GitHub providers.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string

	// Scopes for the authorization variant. Ignored for authentication,
	// which always uses GitHubSignInScopes.
	Scopes []string

	HTTPClient *http.Client
}

func newGitHubClient(cfg GitHubConfig, scopes []string) *client {
	return &client{
		name: "github",
		http: cfg.HTTPClient,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint:     github.Endpoint,
		},
	}
}

type githubUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// githubFetchUser resolves the account id plus the primary email. The email
// on /user is often null, so /user/emails is the authoritative source.
func githubFetchUser(c *client) func(ctx context.Context, accessToken string) (*authlink.ProviderUser, error) {
	return func(ctx context.Context, accessToken string) (*authlink.ProviderUser, error) {
		var user githubUser
		if err := c.getJSON(ctx, githubUserURL, accessToken, &user, githubAcceptHeader); err != nil {
			return nil, err
		}

		email := user.Email
		var emails []githubEmail
		if err := c.getJSON(ctx, githubEmailsURL, accessToken, &emails, githubAcceptHeader); err == nil {
			for _, e := range emails {
				if e.Primary {
					email = e.Email
					break
				}
			}
		}

		return &authlink.ProviderUser{
			AccountID: strconv.FormatInt(user.ID, 10),
			Email:     email,
		}, nil
	}
}

// githubRefresh rejects every refresh. Classic GitHub OAuth apps issue
// non-expiring tokens without a refresh grant.
func githubRefresh(ctx context.Context, refreshToken string) (*authlink.RefreshedToken, error) {
	return nil, errors.New("github oauth tokens do not support refreshing")
}

// NewGitHubAuthentication builds a GitHub sign-in provider.
func NewGitHubAuthentication(cfg GitHubConfig) authlink.OAuth2AuthenticationProvider {
	c := newGitHubClient(cfg, GitHubSignInScopes)
	return authlink.NewOAuth2AuthenticationProvider(authlink.OAuth2AuthenticationConfig{
		AuthenticationURL: func(ctx context.Context, redirectURI, state string) (*url.URL, error) {
			return c.authCodeURL(redirectURI, state)
		},
		ExchangeCode: c.exchange,
		FetchUser:    githubFetchUser(c),
		RefreshToken: githubRefresh,
	})
}

// NewGitHubAuthorization builds a GitHub account-linking provider with the
// configured scopes.
func NewGitHubAuthorization(cfg GitHubConfig) authlink.OAuth2AuthorizationProvider {
	c := newGitHubClient(cfg, cfg.Scopes)
	return authlink.NewOAuth2AuthorizationProvider(authlink.OAuth2AuthorizationConfig{
		AuthorizationURL: func(ctx context.Context, redirectURI, state string) (*url.URL, error) {
			return c.authCodeURL(redirectURI, state)
		},
		ExchangeCode: c.exchange,
		FetchUser:    githubFetchUser(c),
		RefreshToken: githubRefresh,
	})
}
