package apikey

import (
	"context"
	"net/http"

	"github.com/sgowda/authlink"
)

const (
	vercelKeyURL  = "https://vercel.com/account/settings/tokens"
	vercelUserURL = "https://api.vercel.com/v2/user"
)

// VercelConfig configures the Vercel provider.
type VercelConfig struct {
	HTTPClient *http.Client
}

// NewVercel builds an api-key provider that verifies Vercel personal access
// tokens against the user endpoint.
func NewVercel(cfg VercelConfig) authlink.APIKeyProvider {
	return authlink.NewAPIKeyProvider(authlink.APIKeyConfig{
		APIKeyURL: vercelKeyURL,
		FetchUser: func(ctx context.Context, apiKey string) (*authlink.ProviderUser, error) {
			var payload struct {
				User struct {
					ID string `json:"id"`
				} `json:"user"`
			}
			if err := fetchJSON(ctx, cfg.HTTPClient, "vercel", vercelUserURL, apiKey, &payload); err != nil {
				return nil, err
			}
			return &authlink.ProviderUser{AccountID: payload.User.ID}, nil
		},
	})
}
