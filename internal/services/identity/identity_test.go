package identity

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
)

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "  Ada@Example.COM ", want: "ada@example.com", ok: true},
		{input: "", ok: false},
		{input: "not-an-email", ok: false},
		{input: "Ada <ada@example.com>", ok: false},
	}
	for _, tc := range tests {
		got, err := ValidateEmail(tc.input)
		if tc.ok {
			if err != nil {
				t.Fatalf("ValidateEmail(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("ValidateEmail(%q) = %q, want %q", tc.input, got, tc.want)
			}
			continue
		}
		if !apperrors.HasCode(err, apperrors.CodeAuthEmailInvalid) {
			t.Fatalf("ValidateEmail(%q) error = %v, want code %s", tc.input, err, apperrors.CodeAuthEmailInvalid)
		}
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	t.Parallel()

	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
	ctx := WithIdentity(context.Background(), Identity{ID: "acct-1", Kind: KindAccount})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got.ID != "acct-1" {
		t.Fatalf("id = %q, want %q", got.ID, "acct-1")
	}
	if got.IsGuest() {
		t.Fatal("account identity reported as guest")
	}
}

func TestIsGuestID(t *testing.T) {
	t.Parallel()

	if !isGuestID("guest_abcdefghijklmnopqrstuvwxyz") {
		t.Fatal("expected valid guest id")
	}
	for _, value := range []string{"", "guest_", "guest_SHORT", "acct_abcdefghijklmnopqrstuvwxyz", "guest_abcdefghijklmnop!"} {
		if isGuestID(value) {
			t.Fatalf("isGuestID(%q) = true, want false", value)
		}
	}
}
