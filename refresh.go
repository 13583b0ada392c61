package authlink

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// TokenRefresher exchanges a stored refresh token for a fresh access token
// and persists the result. Concurrent refreshes of the same account collapse
// into one upstream call per process, so parallel session resolutions do not
// race a rotated refresh token against each other.
type TokenRefresher struct {
	Database                DatabaseProvider
	AuthenticationProviders map[string]OAuth2AuthenticationProvider
	AuthorizationProviders  map[string]OAuth2AuthorizationProvider

	group singleflight.Group
}

// RefreshAccountToken refreshes the OAuth2 account identified by kind and
// key and returns the updated record.
//
// When the provider rejects the refresh the account link is deleted before
// the error is surfaced, wrapped in a RefreshRejectedError. A revoked grant
// cannot recover on its own, so keeping the dead link would make every
// later session resolution re-fail the same way.
func (r *TokenRefresher) RefreshAccountToken(ctx context.Context, kind AccountKind, key AccountKey) (*OAuth2Account, error) {
	flightKey := fmt.Sprintf("%s/%s/%s/%s", kind, key.UserID, key.Provider, key.AccountID)
	v, err, _ := r.group.Do(flightKey, func() (any, error) {
		return r.refresh(ctx, kind, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*OAuth2Account), nil
}

func (r *TokenRefresher) refresh(ctx context.Context, kind AccountKind, key AccountKey) (*OAuth2Account, error) {
	var (
		account *OAuth2Account
		err     error
		refresh func(context.Context, string) (*RefreshedToken, error)
		update  func(context.Context, *OAuth2Account) (*OAuth2Account, error)
		remove  func(context.Context, AccountKey) error
	)

	switch kind {
	case KindAuthentication:
		account, err = r.Database.GetOAuth2AuthenticationAccount(ctx, key)
		if p, ok := r.AuthenticationProviders[key.Provider]; ok {
			refresh = p.RefreshToken
		}
		update = r.Database.UpdateOAuth2AuthenticationAccount
		remove = r.Database.DeleteOAuth2AuthenticationAccount
	case KindAuthorization:
		account, err = r.Database.GetOAuth2AuthorizationAccount(ctx, key)
		if p, ok := r.AuthorizationProviders[key.Provider]; ok {
			refresh = p.RefreshToken
		}
		update = r.Database.UpdateOAuth2AuthorizationAccount
		remove = r.Database.DeleteOAuth2AuthorizationAccount
	default:
		return nil, fmt.Errorf("cannot refresh accounts of kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	if refresh == nil {
		return nil, fmt.Errorf("%w: %s provider %q", ErrProviderNotConfigured, kind, key.Provider)
	}

	refreshed, err := refresh(ctx, account.RefreshToken)
	if err != nil {
		if delErr := remove(ctx, key); delErr != nil {
			slog.Error("Failed to delete account after rejected refresh", "provider", key.Provider, "userId", key.UserID, "error", delErr)
		} else {
			slog.Warn("Deleted account link after rejected refresh", "provider", key.Provider, "userId", key.UserID, "accountId", key.AccountID)
		}
		return nil, &RefreshRejectedError{Provider: key.Provider, Err: err}
	}

	account.AccessToken = refreshed.AccessToken
	account.ExpiresAt = refreshed.ExpiresAt
	// Providers that do not rotate refresh tokens return an empty one; keep
	// the stored value in that case or the next refresh is impossible.
	if refreshed.RefreshToken != "" {
		account.RefreshToken = refreshed.RefreshToken
	}

	updated, err := update(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	return updated, nil
}
