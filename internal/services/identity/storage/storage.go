// Package storage defines persistence contracts for identity state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested identity record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Account stores one registered (non-guest) identity.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProviderLink associates an external OAuth subject with an account.
type ProviderLink struct {
	Provider  string
	Subject   string
	AccountID string
	CreatedAt time.Time
}

// Session stores one issued session. Guest sessions carry the guest id in
// SubjectID and no email.
type Session struct {
	ID          string
	SubjectID   string
	Guest       bool
	Email       string
	DisplayName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// ResetToken stores one password reset request keyed by the token hash.
type ResetToken struct {
	TokenHash string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OAuthState stores one in-flight authorization-code redirect.
type OAuthState struct {
	State        string
	Provider     string
	CodeVerifier string
	ReturnTo     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// AccountStore persists accounts and their provider links.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdatePasswordHash(ctx context.Context, accountID string, hash string, updatedAt time.Time) error
	PutProviderLink(ctx context.Context, link ProviderLink) error
	GetProviderLink(ctx context.Context, provider string, subject string) (ProviderLink, error)
}

// SessionStore persists issued sessions.
type SessionStore interface {
	PutSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
}

// ResetTokenStore persists single-use password reset tokens.
type ResetTokenStore interface {
	PutResetToken(ctx context.Context, token ResetToken) error
	// ConsumeResetToken deletes and returns the token when it exists and has
	// not expired at now. Missing or expired tokens return ErrNotFound.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (ResetToken, error)
}

// OAuthStateStore persists pending OAuth redirects.
type OAuthStateStore interface {
	PutOAuthState(ctx context.Context, state OAuthState) error
	// ConsumeOAuthState deletes and returns the state when it exists and has
	// not expired at now.
	ConsumeOAuthState(ctx context.Context, state string, now time.Time) (OAuthState, error)
}

// Store aggregates every identity persistence contract.
type Store interface {
	AccountStore
	SessionStore
	ResetTokenStore
	OAuthStateStore
}
