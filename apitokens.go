package authlink

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetime for minted API access tokens.
const APITokenExpiry = 15 * time.Minute

// APITokenIssuer mints short-lived JWT access tokens from a live session,
// for host applications whose API clients cannot carry the session cookie.
// The session stays the long-lived credential; the JWT only proves it was
// presented recently.
type APITokenIssuer struct {
	SecretKey  string // Secret key for signing JWTs
	Issuer     string // Issuer claim (e.g. "myapp")
	Audience   string // Audience claim (e.g. "api")
	SigningAlg string // HS256 (default), HS384 or HS512

	TokenExpiry time.Duration // Defaults to APITokenExpiry
}

func (t *APITokenIssuer) signingMethod() *jwt.SigningMethodHMAC {
	switch t.SigningAlg {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// IssueToken creates a signed JWT for the resolved session's user. Returns
// the token string and its lifetime in seconds.
func (t *APITokenIssuer) IssueToken(session *ResolvedSession) (string, int64, error) {
	expiry := t.TokenExpiry
	if expiry <= 0 {
		expiry = APITokenExpiry
	}

	now := time.Now()
	providers := make([]string, 0, len(session.Accounts))
	for _, acct := range session.Accounts {
		providers = append(providers, string(acct.Kind)+":"+acct.Provider)
	}

	claims := jwt.MapClaims{
		"sub":       session.UserID,
		"type":      "access",
		"providers": providers,
		"iat":       now.Unix(),
		"exp":       now.Add(expiry).Unix(),
	}
	if t.Issuer != "" {
		claims["iss"] = t.Issuer
	}
	if t.Audience != "" {
		claims["aud"] = t.Audience
	}

	token := jwt.NewWithClaims(t.signingMethod(), claims)
	signed, err := token.SignedString([]byte(t.SecretKey))
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, int64(expiry.Seconds()), nil
}

// ValidateToken validates a JWT minted by IssueToken and returns the user id
// and the provider list baked into it.
func (t *APITokenIssuer) ValidateToken(tokenString string) (userID string, providers []string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(t.SecretKey), nil
	})
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, fmt.Errorf("invalid claims")
	}
	if tokenType, ok := claims["type"].(string); !ok || tokenType != "access" {
		return "", nil, fmt.Errorf("invalid token type")
	}
	if t.Issuer != "" {
		if iss, ok := claims["iss"].(string); !ok || iss != t.Issuer {
			return "", nil, fmt.Errorf("invalid issuer")
		}
	}

	userID, ok = claims["sub"].(string)
	if !ok || userID == "" {
		return "", nil, fmt.Errorf("missing subject")
	}

	if raw, ok := claims["providers"].([]any); ok {
		providers = make([]string, 0, len(raw))
		for _, p := range raw {
			if s, ok := p.(string); ok {
				providers = append(providers, s)
			}
		}
	}
	return userID, providers, nil
}

type tokenContextKey struct{}

// TokenInfo is the identity carried by a validated API token.
type TokenInfo struct {
	UserID    string
	Providers []string
}

// TokenFromContext returns the identity placed by RequireToken, or nil.
func TokenFromContext(ctx context.Context) *TokenInfo {
	if v := ctx.Value(tokenContextKey{}); v != nil {
		if info, ok := v.(*TokenInfo); ok {
			return info
		}
	}
	return nil
}

// RequireToken is HTTP middleware for API routes authenticated by a minted
// token instead of the session cookie. The bearer token is validated and its
// identity made available through TokenFromContext.
func (t *APITokenIssuer) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "Bearer token required", http.StatusUnauthorized)
			return
		}
		userID, providers, err := t.ValidateToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), tokenContextKey{}, &TokenInfo{UserID: userID, Providers: providers})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
