// Package magiclink provides email delivery for magic-link sign-in: the
// Resend HTTP API for hosted sending, plain SMTP for self-hosted setups and
// a console sender for development.
package magiclink

import "fmt"

// RenderFunc turns the sign-in URL into the email body. The default simply
// wraps the URL in a link.
type RenderFunc func(url string) (html, text string)

func defaultRender(url string) (string, string) {
	html := fmt.Sprintf(`<p>Click the link below to sign in:</p><p><a href="%s">Sign in</a></p>`, url)
	text := "Sign in: " + url
	return html, text
}
