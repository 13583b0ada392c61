// Package oauth2 provides ready-made providers for common identity services,
// built on golang.org/x/oauth2. Each provider is constructed with client
// credentials only; the redirect URI arrives per call from the orchestrator.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/sgowda/authlink"
)

// client is the shared plumbing under the concrete providers: a provider
// name for error reporting, the oauth2 endpoint configuration and the HTTP
// client used for user info calls.
type client struct {
	name string
	conf *oauth2.Config
	http *http.Client
}

func (c *client) httpClient() *http.Client {
	if c.http != nil {
		return c.http
	}
	return http.DefaultClient
}

// confWith clones the endpoint configuration with the per-call redirect URI.
func (c *client) confWith(redirectURI string) *oauth2.Config {
	conf := *c.conf
	conf.RedirectURL = redirectURI
	return &conf
}

func (c *client) authCodeURL(redirectURI, state string, opts ...oauth2.AuthCodeOption) (*url.URL, error) {
	raw := c.confWith(redirectURI).AuthCodeURL(state, opts...)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s auth url: %w", c.name, err)
	}
	return u, nil
}

func (c *client) exchange(ctx context.Context, code, redirectURI string) (*authlink.Token, error) {
	tok, err := c.confWith(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange failed: %w", c.name, err)
	}
	return &authlink.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// refresh exchanges a refresh token through the endpoint's token source. A
// provider that did not rotate the refresh token yields an empty one so the
// caller keeps the stored value.
func (c *client) refresh(ctx context.Context, refreshToken string) (*authlink.RefreshedToken, error) {
	ts := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%s token refresh failed: %w", c.name, err)
	}
	rotated := tok.RefreshToken
	if rotated == refreshToken {
		rotated = ""
	}
	return &authlink.RefreshedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: rotated,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
// Non-2xx responses become UpstreamError with a truncated body.
func (c *client) getJSON(ctx context.Context, rawURL, accessToken string, out any, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s response read failed: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &authlink.UpstreamError{Provider: c.name, Status: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &authlink.UpstreamError{Provider: c.name, Status: resp.StatusCode, Body: "undecodable body"}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
