package gorm

import (
	"time"

	"gorm.io/gorm"
)

// AutoMigrate runs database migrations for all authlink tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&AuthenticationRequestModel{},
		&AuthorizationRequestModel{},
		&MagicLinkRequestModel{},
		&AuthenticationAccountModel{},
		&AuthorizationAccountModel{},
		&APIKeyAccountModel{},
		&SessionModel{},
	)
}

// UserModel is the GORM model for users.
type UserModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Email     string    `gorm:"size:255;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string { return "users" }

// AuthenticationRequestModel is the pending record for an OAuth2 sign-in.
type AuthenticationRequestModel struct {
	Token       string    `gorm:"primaryKey;size:255"`
	CallbackURL string    `gorm:"size:255;not null"`
	ExpiresAt   time.Time `gorm:"not null"`
}

func (AuthenticationRequestModel) TableName() string { return "oauth2_authentication_requests" }

// AuthorizationRequestModel is the pending record for an OAuth2 account link.
type AuthorizationRequestModel struct {
	Token       string    `gorm:"primaryKey;size:255"`
	UserID      string    `gorm:"size:64;index;not null"`
	CallbackURL string    `gorm:"size:255;not null"`
	ExpiresAt   time.Time `gorm:"not null"`
}

func (AuthorizationRequestModel) TableName() string { return "oauth2_authorization_requests" }

// MagicLinkRequestModel is the pending record for a magic-link email.
type MagicLinkRequestModel struct {
	Token     string    `gorm:"primaryKey;size:255"`
	Email     string    `gorm:"size:255;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (MagicLinkRequestModel) TableName() string { return "magic_link_requests" }

// AuthenticationAccountModel links a user to an OAuth2 identity used for
// sign-in. The composite primary key enforces account uniqueness.
type AuthenticationAccountModel struct {
	UserID       string    `gorm:"primaryKey;size:64"`
	Provider     string    `gorm:"primaryKey;size:255"`
	AccountID    string    `gorm:"primaryKey;size:255"`
	AccessToken  string    `gorm:"size:1024;not null"`
	RefreshToken string    `gorm:"size:1024"`
	ExpiresAt    time.Time `gorm:"not null"`
}

func (AuthenticationAccountModel) TableName() string { return "oauth2_authentication_accounts" }

// AuthorizationAccountModel links a user to an OAuth2 identity used for
// delegated API access.
type AuthorizationAccountModel struct {
	UserID       string    `gorm:"primaryKey;size:64"`
	Provider     string    `gorm:"primaryKey;size:255"`
	AccountID    string    `gorm:"primaryKey;size:255"`
	AccessToken  string    `gorm:"size:1024;not null"`
	RefreshToken string    `gorm:"size:1024"`
	ExpiresAt    time.Time `gorm:"not null"`
}

func (AuthorizationAccountModel) TableName() string { return "oauth2_authorization_accounts" }

// APIKeyAccountModel links a user to a provider identity through an API key.
type APIKeyAccountModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Provider  string `gorm:"primaryKey;size:255"`
	AccountID string `gorm:"primaryKey;size:255"`
	APIKey    string `gorm:"size:1024;not null"`
}

func (APIKeyAccountModel) TableName() string { return "api_key_authorization_accounts" }

// SessionModel is a stored session keyed by its opaque bearer value.
type SessionModel struct {
	Key       string    `gorm:"primaryKey;size:255"`
	UserID    string    `gorm:"size:64;index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (SessionModel) TableName() string { return "sessions" }
