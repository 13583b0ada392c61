package magiclink

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/sgowda/authlink"
)

// SMTPConfig configures a magic-link provider delivering over SMTP.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	Render   RenderFunc

	// TLSMode is "auto" (default, STARTTLS when offered), "ssl" or "none".
	TLSMode string

	// InsecureSkipVerify disables certificate checks. Dev only.
	InsecureSkipVerify bool
}

// NewSMTP builds a magic-link provider backed by an SMTP server.
func NewSMTP(cfg SMTPConfig) authlink.MagicLinkProvider {
	if cfg.Subject == "" {
		cfg.Subject = "Sign in"
	}
	if cfg.Render == nil {
		cfg.Render = defaultRender
	}

	return authlink.NewMagicLinkProvider(authlink.MagicLinkConfig{
		SendEmail: func(ctx context.Context, email, url string) error {
			html, text := cfg.Render(url)

			m := mail.NewMessage()
			m.SetHeader("From", cfg.From)
			m.SetHeader("To", email)
			m.SetHeader("Subject", cfg.Subject)
			m.SetBody("text/plain", text)
			m.AddAlternative("text/html", html)

			d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
			d.TLSConfig = &tls.Config{
				ServerName:         cfg.Host,
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			}
			switch cfg.TLSMode {
			case "ssl":
				d.SSL = true
			case "none":
				d.TLSConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
			}

			if err := d.DialAndSend(m); err != nil {
				return fmt.Errorf("smtp send: %w", err)
			}
			return nil
		},
	})
}
