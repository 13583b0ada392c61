package magiclink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sgowda/authlink"
)

const resendSendURL = "https://api.resend.com/emails"

// ResendConfig configures a magic-link provider delivering through the
// Resend HTTP API.
type ResendConfig struct {
	APIKey  string
	From    string // e.g. "MyApp <auth@myapp.com>"
	Subject string
	Render  RenderFunc

	HTTPClient *http.Client
}

// NewResend builds a magic-link provider backed by Resend.
func NewResend(cfg ResendConfig) authlink.MagicLinkProvider {
	if cfg.Subject == "" {
		cfg.Subject = "Sign in"
	}
	if cfg.Render == nil {
		cfg.Render = defaultRender
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return authlink.NewMagicLinkProvider(authlink.MagicLinkConfig{
		SendEmail: func(ctx context.Context, email, url string) error {
			html, text := cfg.Render(url)
			payload, err := json.Marshal(map[string]any{
				"from":    cfg.From,
				"to":      []string{email},
				"subject": cfg.Subject,
				"html":    html,
				"text":    text,
			})
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendSendURL, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
				return &authlink.UpstreamError{Provider: "resend", Status: resp.StatusCode, Body: string(body)}
			}
			return nil
		},
	})
}
