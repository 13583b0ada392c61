package authlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Completion is the outcome of a provider callback. Session is non-nil only
// for authentication completions; authorization completions return just the
// callback URL to land the user on.
type Completion struct {
	Session     *Session
	CallbackURL string
}

// Complete dispatches a provider callback by flow method and provider name.
// Both OAuth2 flows require the code and state query parameters; the state
// is the pending request token issued by the initiation half.
func (a *Auth) Complete(ctx context.Context, method, provider, code, state string) (*Completion, error) {
	switch method {
	case FlowAuthentication:
		if p, ok := a.OAuth2Authentication[provider]; ok {
			return a.completeAuthentication(ctx, provider, p, code, state)
		}
		if _, ok := a.MagicLink[provider]; ok {
			// Magic-link redemption is not a callback exchange.
			return nil, fmt.Errorf("%w: magic link provider %q has no callback", ErrUnsupportedFlow, provider)
		}
	case FlowAuthorization:
		if p, ok := a.OAuth2Authorization[provider]; ok {
			return a.completeAuthorization(ctx, provider, p, code, state)
		}
		if _, ok := a.APIKey[provider]; ok {
			// API keys are submitted directly; there is no redirect leg.
			return nil, fmt.Errorf("%w: api key provider %q has no callback", ErrUnsupportedFlow, provider)
		}
	default:
		return nil, fmt.Errorf("%w: unknown flow method %q", ErrUnsupportedFlow, method)
	}
	return nil, fmt.Errorf("%w: %s provider %q", ErrProviderNotConfigured, method, provider)
}

// completeAuthentication finishes an OAuth2 sign-in. The provider identity
// keys on email: an unknown email creates a user plus their first account
// link, a known email signs into the existing user as-is. Either way a fresh
// session is created.
func (a *Auth) completeAuthentication(ctx context.Context, provider string, p OAuth2AuthenticationProvider, code, state string) (*Completion, error) {
	if code == "" || state == "" {
		return nil, ErrMissingParameter
	}

	token, err := p.ExchangeCode(ctx, code, a.redirectURI(FlowAuthentication, provider))
	if err != nil {
		return nil, fmt.Errorf("code exchange with %s failed: %w", provider, err)
	}

	pu, err := p.FetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("user fetch from %s failed: %w", provider, err)
	}

	req, err := a.Database.GetOAuth2AuthenticationRequest(ctx, state)
	if err != nil {
		return nil, err
	}
	// Expiry is checked even though the record was found; a stale request is
	// as invalid as a missing one.
	if req.Expired() {
		return nil, ErrRequestExpired
	}

	user, err := a.Database.GetUserByEmail(ctx, pu.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = a.Database.CreateUser(ctx, pu.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to create user for %s: %w", pu.Email, err)
		}
		if _, err := a.Database.CreateOAuth2AuthenticationAccount(ctx, &OAuth2Account{
			UserID:       user.ID,
			Provider:     provider,
			AccountID:    pu.AccountID,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    token.ExpiresAt,
		}); err != nil {
			return nil, fmt.Errorf("failed to link %s account: %w", provider, err)
		}
		slog.Info("Created user on first sign-in", "email", pu.Email, "provider", provider)
	}

	session, err := a.Database.CreateSession(ctx, user.ID, time.Now().Add(a.SessionExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Completion{Session: session, CallbackURL: req.CallbackURL}, nil
}

// completeAuthorization finishes an OAuth2 account link. The user to attach
// to comes from the pending request, not from the provider identity, so no
// email resolution happens here.
func (a *Auth) completeAuthorization(ctx context.Context, provider string, p OAuth2AuthorizationProvider, code, state string) (*Completion, error) {
	if code == "" || state == "" {
		return nil, ErrMissingParameter
	}

	token, err := p.ExchangeCode(ctx, code, a.redirectURI(FlowAuthorization, provider))
	if err != nil {
		return nil, fmt.Errorf("code exchange with %s failed: %w", provider, err)
	}

	pu, err := p.FetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("user fetch from %s failed: %w", provider, err)
	}

	req, err := a.Database.GetOAuth2AuthorizationRequest(ctx, state)
	if err != nil {
		return nil, err
	}
	if req.Expired() {
		return nil, ErrRequestExpired
	}

	if _, err := a.Database.CreateOAuth2AuthorizationAccount(ctx, &OAuth2Account{
		UserID:       req.UserID,
		Provider:     provider,
		AccountID:    pu.AccountID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to link %s account: %w", provider, err)
	}
	slog.Info("Linked authorization account", "userId", req.UserID, "provider", provider, "accountId", pu.AccountID)

	return &Completion{CallbackURL: req.CallbackURL}, nil
}
