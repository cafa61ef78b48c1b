package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/id"
	"github.com/louisbranch/taskflow/internal/services/identity/storage"
)

const (
	defaultResetTTL   = time.Hour
	defaultOAuthTTL   = 10 * time.Minute
	resetTokenBytes   = 32
	oauthStateBytes   = 24
	watchBufferEvents = 2
)

// Session is an issued session token and the identity it carries.
type Session struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}

// Service owns sign-up, sign-in, guest bootstrap, sessions, and password
// resets.
type Service struct {
	store      storage.Store
	signer     *SessionSigner
	mailer     Mailer
	providers  map[string]*OAuthProvider
	hub        *sessionHub
	now        func() time.Time
	newID      func() (string, error)
	bcryptCost int
	resetURL   string
	resetTTL   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
			s.signer.now = now
		}
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithMailer sets the password reset mailer.
func WithMailer(mailer Mailer) Option {
	return func(s *Service) {
		if mailer != nil {
			s.mailer = mailer
		}
	}
}

// WithResetURL sets the base link that reset tokens are appended to.
func WithResetURL(link string) Option {
	return func(s *Service) {
		s.resetURL = strings.TrimSpace(link)
	}
}

// WithOAuthProviders registers OAuth providers by name.
func WithOAuthProviders(providers ...*OAuthProvider) Option {
	return func(s *Service) {
		for _, provider := range providers {
			if provider == nil || provider.Name == "" {
				continue
			}
			s.providers[provider.Name] = provider
		}
	}
}

// NewService builds an identity service over store and signer.
func NewService(store storage.Store, signer *SessionSigner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	if signer == nil {
		return nil, errors.New("session signer is required")
	}
	s := &Service{
		store:      store,
		signer:     signer,
		mailer:     LogMailer{},
		providers:  make(map[string]*OAuthProvider),
		hub:        newSessionHub(),
		now:        time.Now,
		newID:      id.NewID,
		bcryptCost: bcrypt.DefaultCost,
		resetURL:   "http://localhost:8080/reset-password",
		resetTTL:   defaultResetTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email string, password string, displayName string) (Session, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return Session{}, err
	}
	if err := validatePassword(password); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	accountID, err := s.newID()
	if err != nil {
		return Session{}, fmt.Errorf("generate account id: %w", err)
	}
	now := s.now().UTC()
	account := storage.Account{
		ID:           accountID,
		Email:        normalized,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Session{}, apperrors.New(apperrors.CodeAuthEmailTaken, "email is already registered")
		}
		return Session{}, apperrors.Wrap(apperrors.CodeUnavailable, "create account", err)
	}
	return s.issue(ctx, accountIdentity(account))
}

// SignIn verifies an email and password and issues a session.
func (s *Service) SignIn(ctx context.Context, email string, password string) (Session, error) {
	normalized := NormalizeEmail(email)
	account, err := s.store.GetAccountByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, apperrors.New(apperrors.CodeAuthInvalidCredentials, "invalid email or password")
		}
		return Session{}, apperrors.Wrap(apperrors.CodeUnavailable, "load account", err)
	}
	if account.PasswordHash == "" {
		return Session{}, apperrors.New(apperrors.CodeAuthInvalidCredentials, "account has no password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, apperrors.New(apperrors.CodeAuthInvalidCredentials, "invalid email or password")
	}
	return s.issue(ctx, accountIdentity(account))
}

// Guest issues a guest session. A previously issued guest id may be echoed
// back to resume the same guest data.
func (s *Service) Guest(ctx context.Context, guestID string) (Session, error) {
	guestID = strings.TrimSpace(guestID)
	if !isGuestID(guestID) {
		generated, err := s.newID()
		if err != nil {
			return Session{}, fmt.Errorf("generate guest id: %w", err)
		}
		guestID = GuestIDPrefix + generated
	}
	return s.issue(ctx, Identity{ID: guestID, Kind: KindGuest, DisplayName: "Guest"})
}

// Authenticate verifies token and confirms its session has not been revoked.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	ident, err := s.signer.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	session, err := s.store.GetSession(ctx, ident.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "session not found")
		}
		return Identity{}, apperrors.Wrap(apperrors.CodeUnavailable, "load session", err)
	}
	if !sessionActive(session, s.now()) || session.SubjectID != ident.ID {
		return Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "session is no longer active")
	}
	return ident, nil
}

// SignOut revokes the session behind token and notifies its watchers.
func (s *Service) SignOut(ctx context.Context, token string) error {
	ident, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.store.RevokeSession(ctx, ident.SessionID, now); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "revoke session", err)
	}
	s.hub.signOut(SessionEvent{Kind: SessionSignedOut, SessionID: ident.SessionID, Identity: ident, At: now})
	return nil
}

// Watch delivers the current state of sessionID and then its sign-out, if
// any. The channel closes after sign-out or when ctx is done.
func (s *Service) Watch(ctx context.Context, sessionID string) (<-chan SessionEvent, error) {
	sessionID = strings.TrimSpace(sessionID)
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeAuthSessionInvalid, "session not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "load session", err)
	}
	ident := sessionIdentity(session)
	w := &sessionWatcher{ch: make(chan SessionEvent, watchBufferEvents)}
	if !sessionActive(session, s.now()) {
		w.ch <- SessionEvent{Kind: SessionSignedOut, SessionID: sessionID, Identity: ident, At: s.now().UTC()}
		close(w.ch)
		return w.ch, nil
	}
	w.ch <- SessionEvent{Kind: SessionSignedIn, SessionID: sessionID, Identity: ident, At: session.CreatedAt}
	s.hub.add(sessionID, w)
	context.AfterFunc(ctx, func() {
		s.hub.remove(sessionID, w)
	})
	return w.ch, nil
}

// RequestPasswordReset stores a single-use reset token and mails it. Unknown
// emails succeed without sending anything.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.store.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeUnavailable, "load account", err)
	}
	token, err := id.NewToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	now := s.now().UTC()
	if err := s.store.PutResetToken(ctx, storage.ResetToken{
		TokenHash: hashToken(token),
		AccountID: account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.resetTTL),
	}); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "store reset token", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, account.Email, s.resetLink(token)); err != nil {
		log.Printf("identity: send password reset account=%s err=%v", account.ID, err)
		return apperrors.Wrap(apperrors.CodeUnavailable, "send reset email", err)
	}
	return nil
}

// ResetPassword consumes token and replaces the account password.
func (s *Service) ResetPassword(ctx context.Context, token string, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	record, err := s.store.ConsumeResetToken(ctx, hashToken(strings.TrimSpace(token)), s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeAuthResetTokenInvalid, "reset token is invalid or expired")
		}
		return apperrors.Wrap(apperrors.CodeUnavailable, "consume reset token", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, record.AccountID, string(hash), s.now().UTC()); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "update password", err)
	}
	return nil
}

func (s *Service) issue(ctx context.Context, ident Identity) (Session, error) {
	sessionID, err := s.newID()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now().UTC()
	token, expiresAt, err := s.signer.Sign(ident, sessionID, now)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.PutSession(ctx, storage.Session{
		ID:          sessionID,
		SubjectID:   ident.ID,
		Guest:       ident.IsGuest(),
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}); err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeUnavailable, "store session", err)
	}
	ident.SessionID = sessionID
	return Session{Token: token, Identity: ident, ExpiresAt: expiresAt}, nil
}

func (s *Service) resetLink(token string) string {
	base, err := url.Parse(s.resetURL)
	if err != nil {
		return s.resetURL + "?token=" + url.QueryEscape(token)
	}
	query := base.Query()
	query.Set("token", token)
	base.RawQuery = query.Encode()
	return base.String()
}

func accountIdentity(account storage.Account) Identity {
	return Identity{
		ID:          account.ID,
		Kind:        KindAccount,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}
}

func sessionIdentity(session storage.Session) Identity {
	kind := KindAccount
	if session.Guest {
		kind = KindGuest
	}
	return Identity{
		ID:          session.SubjectID,
		Kind:        kind,
		Email:       session.Email,
		DisplayName: session.DisplayName,
		SessionID:   session.ID,
	}
}

func sessionActive(session storage.Session, now time.Time) bool {
	return session.RevokedAt == nil && now.Before(session.ExpiresAt)
}

func isGuestID(value string) bool {
	rest, ok := strings.CutPrefix(value, GuestIDPrefix)
	if !ok || len(rest) < 16 || len(rest) > 64 {
		return false
	}
	for _, r := range rest {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
