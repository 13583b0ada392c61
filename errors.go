package authlink

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration core. Callers should compare with
// errors.Is since storage adapters and flow code may wrap them with context.
var (
	// ErrProviderNotConfigured is returned when a flow references a provider
	// key that was never registered on the Auth configuration.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrMissingParameter is returned when a callback completion is invoked
	// without the required code or state query parameter.
	ErrMissingParameter = errors.New("missing code or state parameter")

	// ErrRequestNotFound is returned when no pending request matches the
	// presented state token.
	ErrRequestNotFound = errors.New("auth request not found")

	// ErrRequestExpired is returned when a pending request exists but its
	// expiry has passed. Expired requests are never honored.
	ErrRequestExpired = errors.New("auth request expired")

	// ErrAccountNotFound is returned when a linked account lookup by
	// (userId, provider, accountId) finds no record.
	ErrAccountNotFound = errors.New("linked account not found")

	// ErrAccountExists is returned by storage adapters when creating a
	// linked account whose (userId, provider, accountId) triple is taken.
	ErrAccountExists = errors.New("linked account already exists")

	// ErrSessionExpired is returned by session resolution when the session
	// record exists but has expired; the caller must clear the credential.
	ErrSessionExpired = errors.New("session expired")

	// ErrUnsupportedFlow is returned when a callback is dispatched to a
	// provider method that has no completion half (magic link).
	ErrUnsupportedFlow = errors.New("flow not supported on this path")
)

// RefreshRejectedError wraps a provider's refusal to refresh a token. By the
// time the caller sees it the dead account link has already been deleted.
type RefreshRejectedError struct {
	Provider string
	Err      error
}

func (e *RefreshRejectedError) Error() string {
	return fmt.Sprintf("provider %s rejected token refresh: %v", e.Provider, e.Err)
}

func (e *RefreshRejectedError) Unwrap() error { return e.Err }

// UpstreamError reports a failure from a provider's HTTP surface: a non-2xx
// status or a payload that could not be decoded.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// Error codes surfaced at the HTTP boundary. Callback failures redirect with
// a coarse code rather than leaking internal detail.
const (
	ErrCodeProviderNotConfigured = "provider_not_configured"
	ErrCodeMissingParameter      = "missing_parameter"
	ErrCodeRequestNotFound       = "request_not_found"
	ErrCodeRequestExpired        = "request_expired"
	ErrCodeAccountNotFound       = "account_not_found"
	ErrCodeAccountExists         = "account_exists"
	ErrCodeRefreshRejected       = "refresh_rejected"
	ErrCodeUnsupportedFlow       = "unsupported_flow"
	ErrCodeUpstreamError         = "upstream_error"
	ErrCodeServerError           = "server_error"
)

// AuthError carries a machine-readable code alongside a human message for
// JSON error responses at the HTTP boundary.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError creates an AuthError with the given code, message and
// optional field name.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// ErrorCode maps a core error to its boundary code. Unrecognized errors map
// to a generic server error so internal detail never leaks to user agents.
func ErrorCode(err error) string {
	var refreshErr *RefreshRejectedError
	var upstreamErr *UpstreamError
	switch {
	case errors.Is(err, ErrProviderNotConfigured):
		return ErrCodeProviderNotConfigured
	case errors.Is(err, ErrMissingParameter):
		return ErrCodeMissingParameter
	case errors.Is(err, ErrRequestNotFound):
		return ErrCodeRequestNotFound
	case errors.Is(err, ErrRequestExpired):
		return ErrCodeRequestExpired
	case errors.Is(err, ErrAccountNotFound):
		return ErrCodeAccountNotFound
	case errors.Is(err, ErrAccountExists):
		return ErrCodeAccountExists
	case errors.Is(err, ErrUnsupportedFlow):
		return ErrCodeUnsupportedFlow
	case errors.As(err, &refreshErr):
		return ErrCodeRefreshRejected
	case errors.As(err, &upstreamErr):
		return ErrCodeUpstreamError
	default:
		return ErrCodeServerError
	}
}
