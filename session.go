package authlink

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// ResolvedAccount is the projection of a linked account handed to host
// applications. Tokens and API keys never cross this boundary.
type ResolvedAccount struct {
	Kind      AccountKind `json:"kind"`
	Provider  string      `json:"provider"`
	AccountID string      `json:"account_id"`
}

// ResolvedSession is a live session with its linked accounts projected and,
// where needed, freshly refreshed.
type ResolvedSession struct {
	Key       string            `json:"key"`
	UserID    string            `json:"user_id"`
	ExpiresAt time.Time         `json:"expires_at"`
	Accounts  []ResolvedAccount `json:"accounts"`
}

// SessionResolver turns an opaque session key into a ResolvedSession,
// refreshing any OAuth2 account whose access token has expired along the way.
type SessionResolver struct {
	Database  DatabaseProvider
	Refresher *TokenRefresher
}

// ResolveSession looks up the session for key. It returns (nil, nil) for an
// empty or unknown key and ErrSessionExpired for a session past its expiry,
// so callers can tell "no credential" apart from "clear this credential".
//
// Expired OAuth2 accounts are refreshed concurrently. An account whose
// refresh was rejected has been deleted by the refresher and is simply left
// out of the projection; the session itself stays valid.
func (s *SessionResolver) ResolveSession(ctx context.Context, key string) (*ResolvedSession, error) {
	if key == "" {
		return nil, nil
	}
	session, err := s.Database.GetSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	if session.Expired() {
		return nil, ErrSessionExpired
	}

	authn := session.User.OAuth2AuthenticationAccounts
	authz := session.User.OAuth2AuthorizationAccounts
	apikey := session.User.APIKeyAuthorizationAccounts

	// Fixed slots keep the projection order stable regardless of which
	// refreshes run; dropped accounts leave a nil to compact afterwards.
	slots := make([]*ResolvedAccount, len(authn)+len(authz))
	g, gctx := errgroup.WithContext(ctx)

	resolveOAuth2 := func(slot int, kind AccountKind, account OAuth2Account) {
		if !account.Expired() {
			slots[slot] = &ResolvedAccount{Kind: kind, Provider: account.Provider, AccountID: account.AccountID}
			return
		}
		g.Go(func() error {
			fresh, err := s.Refresher.RefreshAccountToken(gctx, kind, AccountKey{
				UserID:    account.UserID,
				Provider:  account.Provider,
				AccountID: account.AccountID,
			})
			if err != nil {
				var rejected *RefreshRejectedError
				if errors.As(err, &rejected) {
					return nil
				}
				return err
			}
			slots[slot] = &ResolvedAccount{Kind: kind, Provider: fresh.Provider, AccountID: fresh.AccountID}
			return nil
		})
	}

	for i, account := range authn {
		resolveOAuth2(i, KindAuthentication, account)
	}
	for i, account := range authz {
		resolveOAuth2(len(authn)+i, KindAuthorization, account)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	accounts := make([]ResolvedAccount, 0, len(slots)+len(apikey))
	for _, slot := range slots {
		if slot != nil {
			accounts = append(accounts, *slot)
		}
	}
	for _, account := range apikey {
		accounts = append(accounts, ResolvedAccount{Kind: KindAPIKey, Provider: account.Provider, AccountID: account.AccountID})
	}

	return &ResolvedSession{
		Key:       session.Key,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		Accounts:  accounts,
	}, nil
}
