// Package apikey provides authorization providers for services that hand
// out personal API keys instead of running an OAuth2 flow. The user pastes
// a key, the provider verifies it and resolves the account it belongs to.
package apikey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sgowda/authlink"
)

// fetchJSON performs a GET with the key as a bearer token and decodes the
// JSON body into out.
func fetchJSON(ctx context.Context, httpClient *http.Client, provider, rawURL, apiKey string, out any) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s response read failed: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The body likely echoes the key holder's context; do not carry it.
		return &authlink.UpstreamError{Provider: provider, Status: resp.StatusCode, Body: "key verification failed"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &authlink.UpstreamError{Provider: provider, Status: resp.StatusCode, Body: "undecodable body"}
	}
	return nil
}
