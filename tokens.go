package authlink

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Default lifetimes for the records this package issues.
const (
	// RequestExpiry bounds pending requests (state tokens and magic links).
	RequestExpiry = 24 * time.Hour

	// SessionExpiry bounds sessions created on successful authentication.
	SessionExpiry = 30 * 24 * time.Hour
)

// GenerateSecureToken generates a cryptographically secure random token,
// used as the OAuth2 state value and as the magic-link correlation key.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
