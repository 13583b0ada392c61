// Package fs implements the authlink DatabaseProvider on a single JSON file.
// Intended for development and small single-process deployments; every
// mutation rewrites the file atomically via a temp-file rename.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sgowda/authlink"
)

type fileData struct {
	Users                  map[string]*authlink.User                  `json:"users"`
	Sessions               map[string]*sessionRecord                  `json:"sessions"`
	AuthenticationRequests map[string]*authlink.AuthenticationRequest `json:"authentication_requests"`
	AuthorizationRequests  map[string]*authlink.AuthorizationRequest  `json:"authorization_requests"`
	MagicLinkRequests      map[string]*authlink.MagicLinkRequest      `json:"magic_link_requests"`
	AuthenticationAccounts map[string]*authlink.OAuth2Account         `json:"authentication_accounts"`
	AuthorizationAccounts  map[string]*authlink.OAuth2Account         `json:"authorization_accounts"`
	APIKeyAccounts         map[string]*authlink.APIKeyAccount         `json:"api_key_accounts"`
}

// sessionRecord stores a session without its derived User projection.
type sessionRecord struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newFileData() *fileData {
	return &fileData{
		Users:                  map[string]*authlink.User{},
		Sessions:               map[string]*sessionRecord{},
		AuthenticationRequests: map[string]*authlink.AuthenticationRequest{},
		AuthorizationRequests:  map[string]*authlink.AuthorizationRequest{},
		MagicLinkRequests:      map[string]*authlink.MagicLinkRequest{},
		AuthenticationAccounts: map[string]*authlink.OAuth2Account{},
		AuthorizationAccounts:  map[string]*authlink.OAuth2Account{},
		APIKeyAccounts:         map[string]*authlink.APIKeyAccount{},
	}
}

// Store implements authlink.DatabaseProvider backed by a JSON file.
type Store struct {
	path string

	mu   sync.RWMutex
	data *fileData
}

// New opens or creates the store at path.
func New(path string) (*Store, error) {
	s := &Store{path: path, data: newFileData()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	data := newFileData()
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	s.data = data
	return nil
}

// save must be called with mu held for writing.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func accountKey(key authlink.AccountKey) string {
	return key.UserID + "\x00" + key.Provider + "\x00" + key.AccountID
}

// =============================================================================
// Pending requests
// =============================================================================

func (s *Store) CreateOAuth2AuthenticationRequest(ctx context.Context, req *authlink.AuthenticationRequest) (*authlink.AuthenticationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *req
	s.data.AuthenticationRequests[req.Token] = &copied
	if err := s.save(); err != nil {
		return nil, err
	}
	return req, nil
}

// GetOAuth2AuthenticationRequest consumes the request so a state token can
// never complete two flows.
func (s *Store) GetOAuth2AuthenticationRequest(ctx context.Context, token string) (*authlink.AuthenticationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.data.AuthenticationRequests[token]
	if !ok {
		return nil, fmt.Errorf("%w: state %s", authlink.ErrRequestNotFound, token)
	}
	delete(s.data.AuthenticationRequests, token)
	if err := s.save(); err != nil {
		return nil, err
	}
	out := *req
	return &out, nil
}

func (s *Store) CreateOAuth2AuthorizationRequest(ctx context.Context, req *authlink.AuthorizationRequest) (*authlink.AuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *req
	s.data.AuthorizationRequests[req.Token] = &copied
	if err := s.save(); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Store) GetOAuth2AuthorizationRequest(ctx context.Context, token string) (*authlink.AuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.data.AuthorizationRequests[token]
	if !ok {
		return nil, fmt.Errorf("%w: state %s", authlink.ErrRequestNotFound, token)
	}
	delete(s.data.AuthorizationRequests, token)
	if err := s.save(); err != nil {
		return nil, err
	}
	out := *req
	return &out, nil
}

func (s *Store) CreateMagicLinkRequest(ctx context.Context, req *authlink.MagicLinkRequest) (*authlink.MagicLinkRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *req
	s.data.MagicLinkRequests[req.Token] = &copied
	if err := s.save(); err != nil {
		return nil, err
	}
	return req, nil
}

// =============================================================================
// Users and sessions
// =============================================================================

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authlink.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateUser(ctx context.Context, email string) (*authlink.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.data.Users {
		if user.Email == email {
			return nil, fmt.Errorf("user with email %s already exists", email)
		}
	}
	user := &authlink.User{ID: uuid.NewString(), Email: email}
	s.data.Users[user.ID] = user
	if err := s.save(); err != nil {
		return nil, err
	}
	out := *user
	return &out, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*authlink.Session, error) {
	s.mu.Lock()
	record := &sessionRecord{Key: uuid.NewString(), UserID: userID, ExpiresAt: expiresAt}
	s.data.Sessions[record.Key] = record
	if err := s.save(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	return s.GetSession(ctx, record.Key)
}

func (s *Store) GetSession(ctx context.Context, key string) (*authlink.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data.Sessions[key]
	if !ok {
		return nil, nil
	}

	user := authlink.SessionUser{}
	for _, acct := range s.data.AuthenticationAccounts {
		if acct.UserID == record.UserID {
			user.OAuth2AuthenticationAccounts = append(user.OAuth2AuthenticationAccounts, *acct)
		}
	}
	for _, acct := range s.data.AuthorizationAccounts {
		if acct.UserID == record.UserID {
			user.OAuth2AuthorizationAccounts = append(user.OAuth2AuthorizationAccounts, *acct)
		}
	}
	for _, acct := range s.data.APIKeyAccounts {
		if acct.UserID == record.UserID {
			user.APIKeyAuthorizationAccounts = append(user.APIKeyAuthorizationAccounts, *acct)
		}
	}

	return &authlink.Session{
		Key:       record.Key,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		User:      user,
	}, nil
}

// =============================================================================
// OAuth2 accounts
// =============================================================================

func (s *Store) getOAuth2Account(table map[string]*authlink.OAuth2Account, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := table[accountKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, key.Provider, key.AccountID)
	}
	out := *acct
	return &out, nil
}

func (s *Store) createOAuth2Account(table map[string]*authlink.OAuth2Account, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := accountKey(authlink.AccountKey{UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID})
	if _, exists := table[k]; exists {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
	}
	copied := *account
	table[k] = &copied
	if err := s.save(); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) updateOAuth2Account(table map[string]*authlink.OAuth2Account, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := accountKey(authlink.AccountKey{UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID})
	if _, exists := table[k]; !exists {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountNotFound, account.Provider, account.AccountID)
	}
	copied := *account
	table[k] = &copied
	if err := s.save(); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) deleteOAuth2Account(table map[string]*authlink.OAuth2Account, key authlink.AccountKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(table, accountKey(key))
	return s.save()
}

func (s *Store) GetOAuth2AuthenticationAccount(ctx context.Context, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	return s.getOAuth2Account(s.data.AuthenticationAccounts, key)
}

func (s *Store) CreateOAuth2AuthenticationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.createOAuth2Account(s.data.AuthenticationAccounts, account)
}

func (s *Store) UpdateOAuth2AuthenticationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.updateOAuth2Account(s.data.AuthenticationAccounts, account)
}

func (s *Store) DeleteOAuth2AuthenticationAccount(ctx context.Context, key authlink.AccountKey) error {
	return s.deleteOAuth2Account(s.data.AuthenticationAccounts, key)
}

func (s *Store) GetOAuth2AuthorizationAccount(ctx context.Context, key authlink.AccountKey) (*authlink.OAuth2Account, error) {
	return s.getOAuth2Account(s.data.AuthorizationAccounts, key)
}

func (s *Store) CreateOAuth2AuthorizationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.createOAuth2Account(s.data.AuthorizationAccounts, account)
}

func (s *Store) UpdateOAuth2AuthorizationAccount(ctx context.Context, account *authlink.OAuth2Account) (*authlink.OAuth2Account, error) {
	return s.updateOAuth2Account(s.data.AuthorizationAccounts, account)
}

func (s *Store) DeleteOAuth2AuthorizationAccount(ctx context.Context, key authlink.AccountKey) error {
	return s.deleteOAuth2Account(s.data.AuthorizationAccounts, key)
}

// =============================================================================
// API key accounts
// =============================================================================

func (s *Store) CreateAPIKeyAuthorizationAccount(ctx context.Context, account *authlink.APIKeyAccount) (*authlink.APIKeyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := accountKey(authlink.AccountKey{UserID: account.UserID, Provider: account.Provider, AccountID: account.AccountID})
	if _, exists := s.data.APIKeyAccounts[k]; exists {
		return nil, fmt.Errorf("%w: %s/%s", authlink.ErrAccountExists, account.Provider, account.AccountID)
	}
	copied := *account
	s.data.APIKeyAccounts[k] = &copied
	if err := s.save(); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) DeleteAPIKeyAuthorizationAccount(ctx context.Context, key authlink.AccountKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.APIKeyAccounts, accountKey(key))
	return s.save()
}

var _ authlink.DatabaseProvider = (*Store)(nil)
