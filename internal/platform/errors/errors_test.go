package errors

import (
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeOfFindsWrappedDomainError(t *testing.T) {
	base := New(CodeListPermissionDenied, "cannot modify list")
	wrapped := fmt.Errorf("add task: %w", base)

	if got := CodeOf(wrapped); got != CodeListPermissionDenied {
		t.Fatalf("CodeOf = %q, want %q", got, CodeListPermissionDenied)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeUnknown)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeNotFound, "list missing", fmt.Errorf("no rows"))
	if !HasCode(err, CodeNotFound) {
		t.Fatal("expected code match")
	}
	if err.Is(New(CodeTaskNotFound, "")) {
		t.Fatal("expected different codes not to match")
	}
	if got := err.Error(); got != "list missing: no rows" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeTaskTitleEmpty, http.StatusBadRequest},
		{CodeListPermissionDenied, http.StatusForbidden},
		{CodeGuestNotAllowed, http.StatusForbidden},
		{CodeAuthSessionInvalid, http.StatusUnauthorized},
		{CodeTaskNotFound, http.StatusNotFound},
		{CodeAuthEmailTaken, http.StatusConflict},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			if got := tc.code.HTTPStatus(); got != tc.want {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestToGRPCStatusAttachesDetails(t *testing.T) {
	err := WithMetadata(CodeListAccessDenied, "no access", map[string]string{"ListID": "l1"})
	st, ok := status.FromError(err.ToGRPCStatus("en-US", "You do not have access to this list."))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("code = %v, want PermissionDenied", st.Code())
	}
	var sawInfo, sawLocalized bool
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			sawInfo = d.Reason == string(CodeListAccessDenied) && d.Metadata["ListID"] == "l1"
		case *errdetails.LocalizedMessage:
			sawLocalized = d.Locale == "en-US"
		}
	}
	if !sawInfo || !sawLocalized {
		t.Fatalf("details missing: info=%v localized=%v", sawInfo, sawLocalized)
	}
}
