// Package gae implements the authlink DatabaseProvider on Google Cloud
// Datastore. Accounts and requests are stored under stable name keys so
// lookups are strongly consistent; only the email and user-id scans run as
// queries.
package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/sgowda/authlink"
)

// Kind constants for Datastore entities.
const (
	KindUser                  = "User"
	KindSession               = "Session"
	KindAuthenticationRequest = "OAuth2AuthenticationRequest"
	KindAuthorizationRequest  = "OAuth2AuthorizationRequest"
	KindMagicLinkRequest      = "MagicLinkRequest"
	KindAuthenticationAccount = "OAuth2AuthenticationAccount"
	KindAuthorizationAccount  = "OAuth2AuthorizationAccount"
	KindAPIKeyAccount         = "APIKeyAccount"
)

type userEntity struct {
	Email     string    `datastore:"email"`
	CreatedAt time.Time `datastore:"created_at"`
}

type sessionEntity struct {
	UserID    string    `datastore:"user_id"`
	ExpiresAt time.Time `datastore:"expires_at"`
}

type authenticationRequestEntity struct {
	CallbackURL string    `datastore:"callback_url,noindex"`
	ExpiresAt   time.Time `datastore:"expires_at"`
}

type authorizationRequestEntity struct {
	UserID      string    `datastore:"user_id"`
	CallbackURL string    `datastore:"callback_url,noindex"`
	ExpiresAt   time.Time `datastore:"expires_at"`
}

type magicLinkRequestEntity struct {
	Email     string    `datastore:"email"`
	ExpiresAt time.Time `datastore:"expires_at"`
}

type oauth2AccountEntity struct {
	UserID       string    `datastore:"user_id"`
	Provider     string    `datastore:"provider"`
	AccountID    string    `datastore:"account_id"`
	AccessToken  string    `datastore:"access_token,noindex"`
	RefreshToken string    `datastore:"refresh_token,noindex"`
	ExpiresAt    time.Time `datastore:"expires_at,noindex"`
}

type apiKeyAccountEntity struct {
	UserID    string `datastore:"user_id"`
	Provider  string `datastore:"provider"`
	AccountID string `datastore:"account_id"`
	APIKey    string `datastore:"api_key,noindex"`
}

// Store implements authlink.DatabaseProvider using Google Cloud Datastore.
type Store struct {
	client    *datastore.Client
	namespace string
}

// New wraps an open Datastore client. namespace may be empty.
func New(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) nameKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) accountName(key authlink.AccountKey) string {
	return key.UserID + "|" + key.Provider + "|" + key.AccountID
}

func (s *Store) query(kind string) *datastore.Query {
	return datastore.NewQuery(kind).Namespace(s.namespace)
}

// =============================================================================
// Pending requests
// =============================================================================

func (s *Store) CreateOAuth2AuthenticationRequest(ctx context.Context, req *authlink.AuthenticationRequest) (*authlink.AuthenticationRequest, error) {
	key := s.nameKey(KindAuthenticationRequest, req.Token)
	entity := &authenticationRequestEntity{CallbackURL: req.CallbackURL, ExpiresAt: req.ExpiresAt}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, err
	}
	return req, nil
}

// GetOAuth2AuthenticationRequest consumes the request: it is deleted inside
// the same transaction that reads it.
func (s *Store) GetOAuth2AuthenticationRequest(ctx context.Context, token string) (*authlink.AuthenticationRequest, error) {
	key := s.nameKey(KindAuthenticationRequest, token)
	var entity authenticationRequestEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := tx.Get(key, &entity); err != nil {
			return err
		}
		return tx.Delete(key)
	})
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, fmt.Errorf("%w: state %s", authlink.ErrRequestNotFound, token)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.AuthenticationRequest{
		Token:       token,
		CallbackURL: entity.CallbackURL,
		ExpiresAt:   entity.ExpiresAt,
	}, nil
}

func (s *Store) CreateOAuth2AuthorizationRequest(ctx context.Context, req *authlink.AuthorizationRequest) (*authlink.AuthorizationRequest, error) {
	key := s.nameKey(KindAuthorizationRequest, req.Token)
	entity := &authorizationRequestEntity{UserID: req.UserID, CallbackURL: req.CallbackURL, ExpiresAt: req.ExpiresAt}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Store) GetOAuth2AuthorizationRequest(ctx context.Context, token string) (*authlink.AuthorizationRequest, error) {
	key := s.nameKey(KindAuthorizationRequest, token)
	var entity authorizationRequestEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := tx.Get(key, &entity); err != nil {
			return err
		}
		return tx.Delete(key)
	})
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, fmt.Errorf("%w: state %s", authlink.ErrRequestNotFound, token)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.AuthorizationRequest{
		Token:       token,
		UserID:      entity.UserID,
		CallbackURL: entity.CallbackURL,
		ExpiresAt:   entity.ExpiresAt,
	}, nil
}

func (s *Store) CreateMagicLinkRequest(ctx context.Context, req *authlink.MagicLinkRequest) (*authlink.MagicLinkRequest, error) {
	key := s.nameKey(KindMagicLinkRequest, req.Token)
	entity := &magicLinkRequestEntity{Email: req.Email, ExpiresAt: req.ExpiresAt}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, err
	}
	return req, nil
}

// =============================================================================
// Users and sessions
// =============================================================================

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authlink.User, error) {
	it := s.client.Run(ctx, s.query(KindUser).FilterField("email", "=", email).Limit(1))
	var entity userEntity
	key, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &authlink.User{ID: key.Name, Email: entity.Email}, nil
}

func (s *Store) CreateUser(ctx context.Context, email string) (*authlink.User, error) {
	id := uuid.NewString()
	key := s.nameKey(KindUser, id)
	entity := &userEntity{Email: email, CreatedAt: time.Now()}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, err
	}
	return &authlink.User{ID: id, Email: email}, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*authlink.Session, error) {
	sessionKey := uuid.NewString()
	key := s.nameKey(KindSession, sessionKey)
	entity := &sessionEntity{UserID: userID, ExpiresAt: expiresAt}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, sessionKey)
}

func (s *Store) GetSession(ctx context.Context, key string) (*authlink.Session, error) {
	var entity sessionEntity
	err := s.client.Get(ctx, s.nameKey(KindSession, key), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user, err := s.loadSessionUser(ctx, entity.UserID)
	if err != nil {
		return nil, err
	}
	return &authlink.Session{
		Key:       key,
		UserID:    entity.UserID,
		ExpiresAt: entity.ExpiresAt,
		User:      *user,
	}, nil
}

func (s *Store) loadSessionUser(ctx context.Context, userID string) (*authlink.SessionUser, error) {
	out := &authlink.SessionUser{}

	collect := func(kind string, into *[]authlink.OAuth2Account) error {
		it := s.client.Run(ctx, s.query(kind).FilterField("user_id", "=", userID))
		for {
			var entity oauth2AccountEntity
			_, err := it.Next(&entity)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			*into = append(*into, authlink.OAuth2Account{
				UserID: entity.UserID, Provider: entity.Provider, AccountID: entity.AccountID,
				AccessToken: entity.AccessToken, RefreshToken: entity.RefreshToken, ExpiresAt: entity.ExpiresAt,
			})
		}
	}
	if err := collect(KindAuthenticationAccount, &out.OAuth2AuthenticationAccounts); err != nil {
		return nil, err
	}
	if err := collect(KindAuthorizationAccount, &out.OAuth2AuthorizationAccounts); err != nil {
		return nil, err
	}

	it := s.client.Run(ctx, s.query(KindAPIKeyAccount).FilterField("user_id", "=", userID))
	for {
		var entity apiKeyAccountEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out.APIKeyAuthorizationAccounts = append(out.APIKeyAuthorizationAccounts, authlink.APIKeyAccount{
			UserID: entity.UserID, Provider: entity.Provider, AccountID: entity.AccountID, APIKey: entity.APIKey,
		})
	}
	return out, nil
}

// =============================================================================
// OAuth2 accounts
// =============================================================================

func (s *Store) getOAuth2Account(ctx context.Context, kind string, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	var entity oauth2AccountEntity
	err := s.client.Get(ctx, s.nameKey(kind, s.accountName(key)), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, key.Provider, key.AccountID)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.OAuth2Account{
		UserID: entity.UserID, Provider: entity.Provider, AccountID: entity.AccountID,
		AccessToken: entity.AccessToken, RefreshToken: entity.RefreshToken, ExpiresAt: entity.ExpiresAt,
	}, nil
}

func (s *Store) createOAuth2Account(ctx context.Context, kind string, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	dsKey := s.nameKey(kind, s.accountName(authlink.AccountKey{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
	}))
	entity := &oauth2AccountEntity{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
		AccessToken: account.AccessToken, RefreshToken: account.RefreshToken, ExpiresAt: account.ExpiresAt,
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing oauth2AccountEntity
		err := tx.Get(dsKey, &existing)
		if err == nil {
			return fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(dsKey, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) updateOAuth2Account(ctx context.Context, kind string, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	dsKey := s.nameKey(kind, s.accountName(authlink.AccountKey{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
	}))
	entity := &oauth2AccountEntity{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
		AccessToken: account.AccessToken, RefreshToken: account.RefreshToken, ExpiresAt: account.ExpiresAt,
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing oauth2AccountEntity
		if err := tx.Get(dsKey, &existing); err != nil {
			return err
		}
		_, err := tx.Put(dsKey, entity)
		return err
	})
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, account.Provider, account.AccountID)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) GetOAuth2AuthenticationAccount(ctx context.Context, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	return s.getOAuth2Account(ctx, KindAuthenticationAccount, key)
}

func (s *Store) CreateOAuth2AuthenticationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.createOAuth2Account(ctx, KindAuthenticationAccount, account)
}

func (s *Store) UpdateOAuth2AuthenticationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.updateOAuth2Account(ctx, KindAuthenticationAccount, account)
}

func (s *Store) DeleteOAuth2AuthenticationAccount(ctx context.Context, key authlink.AccountKey) error {
	return s.client.Delete(ctx, s.nameKey(KindAuthenticationAccount, s.accountName(key)))
}

func (s *Store) GetOAuth2AuthorizationAccount(ctx context.Context, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	return s.getOAuth2Account(ctx, KindAuthorizationAccount, key)
}

func (s *Store) CreateOAuth2AuthorizationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.createOAuth2Account(ctx, KindAuthorizationAccount, account)
}

func (s *Store) UpdateOAuth2AuthorizationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.updateOAuth2Account(ctx, KindAuthorizationAccount, account)
}

func (s *Store) DeleteOAuth2AuthorizationAccount(ctx context.Context, key authlink.AccountKey) error {
	return s.client.Delete(ctx, s.nameKey(KindAuthorizationAccount, s.accountName(key)))
}

// =============================================================================
// API key accounts
// =============================================================================

func (s *Store) CreateAPIKeyAuthorizationAccount(ctx context.Context, account *authlink.APIKeyAccount) (*authlink.APIKeyAccount, error) {
	dsKey := s.nameKey(KindAPIKeyAccount, s.accountName(authlink.AccountKey{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
	}))
	entity := &apiKeyAccountEntity{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID, APIKey: account.APIKey,
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing apiKeyAccountEntity
		err := tx.Get(dsKey, &existing)
		if err == nil {
			return fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(dsKey, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) DeleteAPIKeyAuthorizationAccount(ctx context.Context, key authlink.AccountKey) error {
	return s.client.Delete(ctx, s.nameKey(KindAPIKeyAccount, s.accountName(key)))
}

var _ authlink.DatabaseProvider = (*Store)(nil)
