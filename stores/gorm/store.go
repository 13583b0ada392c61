// Package gorm implements the authlink DatabaseProvider on a relational
// database through GORM. Works with any dialect GORM supports; the schema
// mirrors the entity shapes one to one.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sgowda/authlink"
)

// Store implements authlink.DatabaseProvider using GORM.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM handle. Run AutoMigrate separately when the schema
// is managed by this package.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// =============================================================================
// Pending requests
// =============================================================================

func (s *Store) CreateOAuth2AuthenticationRequest(ctx context.Context, req *authlink.AuthenticationRequest) (*authlink.AuthenticationRequest, error) {
	model := &AuthenticationRequestModel{
		Token:       req.Token,
		CallbackURL: req.CallbackURL,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// GetOAuth2AuthenticationRequest consumes the request: the row is deleted on
// read so a state token can never complete two flows.
func (s *Store) GetOAuth2AuthenticationRequest(ctx context.Context, token string) (*authlink.AuthenticationRequest, error) {
	var model AuthenticationRequestModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "token = ?", token).Error; err != nil {
			return err
		}
		return tx.Delete(&AuthenticationRequestModel{}, "token = ?", token).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: state %s", authlink.ErrRequestNotFound, token)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.AuthenticationRequest{
		Token:       model.Token,
		CallbackURL: model.CallbackURL,
		ExpiresAt:   model.ExpiresAt,
	}, nil
}

func (s *Store) CreateOAuth2AuthorizationRequest(ctx context.Context, req *authlink.AuthorizationRequest) (*authlink.AuthorizationRequest, error) {
	model := &AuthorizationRequestModel{
		Token:       req.Token,
		UserID:      req.UserID,
		CallbackURL: req.CallbackURL,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Store) GetOAuth2AuthorizationRequest(ctx context.Context, token string) (*authlink.AuthorizationRequest, error) {
	var model AuthorizationRequestModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "token = ?", token).Error; err != nil {
			return err
		}
		return tx.Delete(&AuthorizationRequestModel{}, "token = ?", token).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: state %s", authlink.ErrRequestNotFound, token)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.AuthorizationRequest{
		Token:       model.Token,
		UserID:      model.UserID,
		CallbackURL: model.CallbackURL,
		ExpiresAt:   model.ExpiresAt,
	}, nil
}

func (s *Store) CreateMagicLinkRequest(ctx context.Context, req *authlink.MagicLinkRequest) (*authlink.MagicLinkRequest, error) {
	model := &MagicLinkRequestModel{
		Token:     req.Token,
		Email:     req.Email,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// =============================================================================
// Users and sessions
// =============================================================================

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authlink.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &authlink.User{ID: model.ID, Email: model.Email}, nil
}

func (s *Store) CreateUser(ctx context.Context, email string) (*authlink.User, error) {
	model := &UserModel{ID: uuid.NewString(), Email: email}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return &authlink.User{ID: model.ID, Email: model.Email}, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*authlink.Session, error) {
	model := &SessionModel{Key: uuid.NewString(), UserID: userID, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return s.GetSession(ctx, model.Key)
}

func (s *Store) GetSession(ctx context.Context, key string) (*authlink.Session, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).First(&model, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user, err := s.loadSessionUser(ctx, model.UserID)
	if err != nil {
		return nil, err
	}
	return &authlink.Session{
		Key:       model.Key,
		UserID:    model.UserID,
		ExpiresAt: model.ExpiresAt,
		User:      *user,
	}, nil
}

func (s *Store) loadSessionUser(ctx context.Context, userID string) (*authlink.SessionUser, error) {
	var authn []AuthenticationAccountModel
	if err := s.db.WithContext(ctx).Find(&authn, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	var authz []AuthorizationAccountModel
	if err := s.db.WithContext(ctx).Find(&authz, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	var apikeys []APIKeyAccountModel
	if err := s.db.WithContext(ctx).Find(&apikeys, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}

	out := &authlink.SessionUser{}
	for _, m := range authn {
		out.OAuth2AuthenticationAccounts = append(out.OAuth2AuthenticationAccounts, authlink.OAuth2Account{
			UserID: m.UserID, Provider: m.Provider, AccountID: m.AccountID,
			AccessToken: m.AccessToken, RefreshToken: m.RefreshToken, ExpiresAt: m.ExpiresAt,
		})
	}
	for _, m := range authz {
		out.OAuth2AuthorizationAccounts = append(out.OAuth2AuthorizationAccounts, authlink.OAuth2Account{
			UserID: m.UserID, Provider: m.Provider, AccountID: m.AccountID,
			AccessToken: m.AccessToken, RefreshToken: m.RefreshToken, ExpiresAt: m.ExpiresAt,
		})
	}
	for _, m := range apikeys {
		out.APIKeyAuthorizationAccounts = append(out.APIKeyAuthorizationAccounts, authlink.APIKeyAccount{
			UserID: m.UserID, Provider: m.Provider, AccountID: m.AccountID, APIKey: m.APIKey,
		})
	}
	return out, nil
}

// =============================================================================
// OAuth2 authentication accounts
// =============================================================================

func accountWhere(key authlink.AccountKey) (string, []any) {
	return "user_id = ? AND provider = ? AND account_id = ?", []any{key.UserID, key.Provider, key.AccountID}
}

func (s *Store) GetOAuth2AuthenticationAccount(ctx context.Context, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	var model AuthenticationAccountModel
	where, args := accountWhere(key)
	err := s.db.WithContext(ctx).First(&model, append([]any{where}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, key.Provider, key.AccountID)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.OAuth2Account{
		UserID: model.UserID, Provider: model.Provider, AccountID: model.AccountID,
		AccessToken: model.AccessToken, RefreshToken: model.RefreshToken, ExpiresAt: model.ExpiresAt,
	}, nil
}

func (s *Store) CreateOAuth2AuthenticationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	model := &AuthenticationAccountModel{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
		AccessToken: account.AccessToken, RefreshToken: account.RefreshToken, ExpiresAt: account.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
		}
		return nil, err
	}
	return account, nil
}

func (s *Store) UpdateOAuth2AuthenticationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	where, args := accountWhere(authlink.AccountKey{UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID})
	res := s.db.WithContext(ctx).Model(&AuthenticationAccountModel{}).
		Where(where, args...).
		Updates(map[string]any{
			"access_token":  account.AccessToken,
			"refresh_token": account.RefreshToken,
			"expires_at":    account.ExpiresAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, account.Provider, account.AccountID)
	}
	return account, nil
}

func (s *Store) DeleteOAuth2AuthenticationAccount(ctx context.Context, key authlink.AccountKey) error {
	where, args := accountWhere(key)
	return s.db.WithContext(ctx).Delete(&AuthenticationAccountModel{}, append([]any{where}, args...)...).Error
}

// =============================================================================
// OAuth2 authorization accounts
// =============================================================================

func (s *Store) GetOAuth2AuthorizationAccount(ctx context.Context, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	var model AuthorizationAccountModel
	where, args := accountWhere(key)
	err := s.db.WithContext(ctx).First(&model, append([]any{where}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, key.Provider, key.AccountID)
	}
	if err != nil {
		return nil, err
	}
	return &authlink.OAuth2Account{
		UserID: model.UserID, Provider: model.Provider, AccountID: model.AccountID,
		AccessToken: model.AccessToken, RefreshToken: model.RefreshToken, ExpiresAt: model.ExpiresAt,
	}, nil
}

func (s *Store) CreateOAuth2AuthorizationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	model := &AuthorizationAccountModel{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID,
		AccessToken: account.AccessToken, RefreshToken: account.RefreshToken, ExpiresAt: account.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
		}
		return nil, err
	}
	return account, nil
}

func (s *Store) UpdateOAuth2AuthorizationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	where, args := accountWhere(authlink.AccountKey{UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID})
	res := s.db.WithContext(ctx).Model(&AuthorizationAccountModel{}).
		Where(where, args...).
		Updates(map[string]any{
			"access_token":  account.AccessToken,
			"refresh_token": account.RefreshToken,
			"expires_at":    account.ExpiresAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, account.Provider, account.AccountID)
	}
	return account, nil
}

func (s *Store) DeleteOAuth2AuthorizationAccount(ctx context.Context, key authlink.AccountKey) error {
	where, args := accountWhere(key)
	return s.db.WithContext(ctx).Delete(&AuthorizationAccountModel{}, append([]any{where}, args...)...).Error
}

// =============================================================================
// API key accounts
// =============================================================================

func (s *Store) CreateAPIKeyAuthorizationAccount(ctx context.Context, account *authlink.APIKeyAccount) (*authlink.APIKeyAccount, error) {
	model := &APIKeyAccountModel{
		UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID, APIKey: account.APIKey,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
		}
		return nil, err
	}
	return account, nil
}

func (s *Store) DeleteAPIKeyAuthorizationAccount(ctx context.Context, key authlink.AccountKey) error {
	where, args := accountWhere(key)
	return s.db.WithContext(ctx).Delete(&APIKeyAccountModel{}, append([]any{where}, args...)...).Error
}

var _ authlink.DatabaseProvider = (*Store)(nil)
