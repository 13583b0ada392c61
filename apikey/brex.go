package apikey

import (
	"context"
	"net/http"

	"github.com/sgowda/authlink"
)

const (
	brexKeyURL  = "https://dashboard.brex.com/settings/developer"
	brexUserURL = "https://platform.brexapis.com/v2/users/me"
)

// BrexConfig configures the Brex provider.
type BrexConfig struct {
	HTTPClient *http.Client
}

// NewBrex builds an api-key provider that verifies Brex user tokens against
// the current-user endpoint.
func NewBrex(cfg BrexConfig) authlink.APIKeyProvider {
	return authlink.NewAPIKeyProvider(authlink.APIKeyConfig{
		APIKeyURL: brexKeyURL,
		FetchUser: func(ctx context.Context, apiKey string) (*authlink.ProviderUser, error) {
			var payload struct {
				ID string `json:"id"`
			}
			if err := fetchJSON(ctx, cfg.HTTPClient, "brex", brexUserURL, apiKey, &payload); err != nil {
				return nil, err
			}
			return &authlink.ProviderUser{AccountID: payload.ID}, nil
		},
	})
}
