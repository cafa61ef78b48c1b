// Package identity authenticates people and guests and issues revocable
// session tokens.
package identity

import (
	"net/mail"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
)

// Kind distinguishes provider-issued identities from locally synthesized
// guests.
type Kind string

const (
	// KindAccount is an identity backed by a password or OAuth account.
	KindAccount Kind = "account"
	// KindGuest is a credential-less identity created on this server.
	KindGuest Kind = "guest"
)

// GuestIDPrefix marks guest identity ids.
const GuestIDPrefix = "guest_"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Identity is the authenticated caller attached to a session.
type Identity struct {
	ID          string
	Kind        Kind
	Email       string
	DisplayName string
	SessionID   string
}

// IsGuest reports whether the identity is a guest.
func (i Identity) IsGuest() bool {
	return i.Kind == KindGuest
}

// IsZero reports whether no identity is present.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.ID) == ""
}

// NormalizeEmail trims and lowercases an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and rejects values that are not a bare
// address.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", apperrors.WithMetadata(apperrors.CodeAuthEmailInvalid, "email is required", map[string]string{"Email": email})
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", apperrors.WithMetadata(apperrors.CodeAuthEmailInvalid, "email is invalid", map[string]string{"Email": email})
	}
	return normalized, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperrors.WithMetadata(
			apperrors.CodeAuthPasswordTooShort,
			"password is too short",
			map[string]string{"Min": strconv.Itoa(MinPasswordLength)},
		)
	}
	return nil
}
