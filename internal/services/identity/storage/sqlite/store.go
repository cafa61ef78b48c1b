// Package sqlite provides a SQLite-backed identity storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/taskflow/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/taskflow/internal/services/identity/storage"
	"github.com/louisbranch/taskflow/internal/services/identity/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists accounts, sessions, reset tokens, and OAuth states in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite identity store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// CreateAccount inserts one account. Emails are unique.
func (s *Store) CreateAccount(ctx context.Context, account storage.Account) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(account.ID)
	email := strings.TrimSpace(account.Email)
	if id == "" {
		return fmt.Errorf("account id is required")
	}
	if email == "" {
		return fmt.Errorf("account email is required")
	}
	createdAt := account.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := account.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO accounts (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		email,
		strings.TrimSpace(account.DisplayName),
		account.PasswordHash,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Account{}, fmt.Errorf("account id is required")
	}
	return s.scanAccount(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at
		   FROM accounts
		  WHERE id = ?`,
		id,
	))
}

// GetAccountByEmail returns one account by its normalized email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return storage.Account{}, fmt.Errorf("account email is required")
	}
	return s.scanAccount(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at
		   FROM accounts
		  WHERE email = ?`,
		email,
	))
}

func (s *Store) scanAccount(row *sql.Row) (storage.Account, error) {
	var account storage.Account
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.PasswordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return account, nil
}

// UpdatePasswordHash replaces the password hash of one account.
func (s *Store) UpdatePasswordHash(ctx context.Context, accountID string, hash string, updatedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash,
		toMillis(updatedAt),
		accountID,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireAffected(result)
}

// PutProviderLink records an OAuth subject for an account.
func (s *Store) PutProviderLink(ctx context.Context, link storage.ProviderLink) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	provider := strings.TrimSpace(link.Provider)
	subject := strings.TrimSpace(link.Subject)
	accountID := strings.TrimSpace(link.AccountID)
	if provider == "" || subject == "" || accountID == "" {
		return fmt.Errorf("provider, subject, and account id are required")
	}
	createdAt := link.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO provider_links (provider, subject, account_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (provider, subject) DO UPDATE SET account_id = excluded.account_id`,
		provider,
		subject,
		accountID,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("put provider link: %w", err)
	}
	return nil
}

// GetProviderLink returns the account link for one provider subject.
func (s *Store) GetProviderLink(ctx context.Context, provider string, subject string) (storage.ProviderLink, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ProviderLink{}, err
	}
	provider = strings.TrimSpace(provider)
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return storage.ProviderLink{}, fmt.Errorf("provider and subject are required")
	}
	var link storage.ProviderLink
	var createdAt int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT provider, subject, account_id, created_at
		   FROM provider_links
		  WHERE provider = ? AND subject = ?`,
		provider,
		subject,
	).Scan(&link.Provider, &link.Subject, &link.AccountID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProviderLink{}, storage.ErrNotFound
		}
		return storage.ProviderLink{}, fmt.Errorf("get provider link: %w", err)
	}
	link.CreatedAt = fromMillis(createdAt)
	return link, nil
}

// PutSession inserts one session record.
func (s *Store) PutSession(ctx context.Context, session storage.Session) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(session.ID)
	subjectID := strings.TrimSpace(session.SubjectID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if subjectID == "" {
		return fmt.Errorf("session subject id is required")
	}
	if session.ExpiresAt.IsZero() {
		return fmt.Errorf("session expiry is required")
	}
	createdAt := session.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, subject_id, guest, email, display_name, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		subjectID,
		session.Guest,
		strings.TrimSpace(session.Email),
		strings.TrimSpace(session.DisplayName),
		toMillis(createdAt),
		toMillis(session.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession returns one session by id, revoked or not.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Session{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Session{}, fmt.Errorf("session id is required")
	}
	var session storage.Session
	var createdAt int64
	var expiresAt int64
	var revokedAt sql.NullInt64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, subject_id, guest, email, display_name, created_at, expires_at, revoked_at
		   FROM sessions
		  WHERE id = ?`,
		id,
	).Scan(
		&session.ID,
		&session.SubjectID,
		&session.Guest,
		&session.Email,
		&session.DisplayName,
		&createdAt,
		&expiresAt,
		&revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Session{}, storage.ErrNotFound
		}
		return storage.Session{}, fmt.Errorf("get session: %w", err)
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	if revokedAt.Valid {
		value := fromMillis(revokedAt.Int64)
		session.RevokedAt = &value
	}
	return session, nil
}

// RevokeSession marks one session revoked. Revoking twice keeps the first time.
func (s *Store) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`,
		toMillis(revokedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return requireAffected(result)
}

// PutResetToken stores one password reset token hash.
func (s *Store) PutResetToken(ctx context.Context, token storage.ResetToken) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tokenHash := strings.TrimSpace(token.TokenHash)
	accountID := strings.TrimSpace(token.AccountID)
	if tokenHash == "" || accountID == "" {
		return fmt.Errorf("token hash and account id are required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO password_reset_tokens (token_hash, account_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		tokenHash,
		accountID,
		toMillis(token.CreatedAt),
		toMillis(token.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken deletes and returns one unexpired reset token.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (storage.ResetToken, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ResetToken{}, err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return storage.ResetToken{}, storage.ErrNotFound
	}
	var token storage.ResetToken
	var createdAt int64
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`DELETE FROM password_reset_tokens
		  WHERE token_hash = ?
		 RETURNING token_hash, account_id, created_at, expires_at`,
		tokenHash,
	).Scan(&token.TokenHash, &token.AccountID, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ResetToken{}, storage.ErrNotFound
		}
		return storage.ResetToken{}, fmt.Errorf("consume reset token: %w", err)
	}
	token.CreatedAt = fromMillis(createdAt)
	token.ExpiresAt = fromMillis(expiresAt)
	if !now.Before(token.ExpiresAt) {
		return storage.ResetToken{}, storage.ErrNotFound
	}
	return token, nil
}

// PutOAuthState stores one pending OAuth redirect.
func (s *Store) PutOAuthState(ctx context.Context, state storage.OAuthState) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	value := strings.TrimSpace(state.State)
	provider := strings.TrimSpace(state.Provider)
	if value == "" || provider == "" {
		return fmt.Errorf("state and provider are required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO oauth_states (state, provider, code_verifier, return_to, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		value,
		provider,
		state.CodeVerifier,
		strings.TrimSpace(state.ReturnTo),
		toMillis(state.CreatedAt),
		toMillis(state.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState deletes and returns one unexpired OAuth state.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string, now time.Time) (storage.OAuthState, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OAuthState{}, err
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return storage.OAuthState{}, storage.ErrNotFound
	}
	var record storage.OAuthState
	var createdAt int64
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`DELETE FROM oauth_states
		  WHERE state = ?
		 RETURNING state, provider, code_verifier, return_to, created_at, expires_at`,
		state,
	).Scan(&record.State, &record.Provider, &record.CodeVerifier, &record.ReturnTo, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OAuthState{}, storage.ErrNotFound
		}
		return storage.OAuthState{}, fmt.Errorf("consume oauth state: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)
	if !now.Before(record.ExpiresAt) {
		return storage.OAuthState{}, storage.ErrNotFound
	}
	return record, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
