package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
)

// MinSessionKeyBytes is the shortest accepted HMAC signing key.
const MinSessionKeyBytes = 32

// SessionSigner issues and verifies HS256 session tokens.
type SessionSigner struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Kind  Kind   `json:"kind"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// NewSessionSigner builds a signer for the given key, issuer, and lifetime.
func NewSessionSigner(key []byte, issuer string, ttl time.Duration) (*SessionSigner, error) {
	if len(key) < MinSessionKeyBytes {
		return nil, fmt.Errorf("session key must be at least %d bytes", MinSessionKeyBytes)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("session issuer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be greater than zero")
	}
	return &SessionSigner{
		key:    append([]byte(nil), key...),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *SessionSigner) TTL() time.Duration {
	return s.ttl
}

// Sign issues a token for id bound to sessionID. It returns the token and its
// expiry.
func (s *SessionSigner) Sign(id Identity, sessionID string, issuedAt time.Time) (string, time.Time, error) {
	if s == nil {
		return "", time.Time{}, errors.New("session signer is not configured")
	}
	if id.IsZero() || strings.TrimSpace(sessionID) == "" {
		return "", time.Time{}, errors.New("identity and session id are required")
	}
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.ID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:  id.Kind,
		Email: id.Email,
		Name:  id.DisplayName,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies a token signature, issuer, and expiry and returns the
// identity it carries. Revocation is checked by the caller.
func (s *SessionSigner) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "session token is required")
	}
	if s == nil {
		return Identity{}, errors.New("session signer is not configured")
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, apperrors.Wrap(apperrors.CodeAuthSessionInvalid, "session token is invalid", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "session token is missing subject or id")
	}
	kind := claims.Kind
	if kind != KindGuest {
		kind = KindAccount
	}
	return Identity{
		ID:          claims.Subject,
		Kind:        kind,
		Email:       claims.Email,
		DisplayName: claims.Name,
		SessionID:   claims.ID,
	}, nil
}
