package magiclink

import (
	"context"
	"log/slog"

	"github.com/sgowda/authlink"
)

// NewConsole builds a magic-link provider that only logs the sign-in URL.
// Useful in development where no mail transport is available.
func NewConsole() authlink.MagicLinkProvider {
	return authlink.NewMagicLinkProvider(authlink.MagicLinkConfig{
		SendEmail: func(ctx context.Context, email, url string) error {
			slog.Info("Magic link issued", "email", email, "url", url)
			return nil
		},
	})
}
