package errors

import (
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHandleErrorLocalizesDomainErrors(t *testing.T) {
	err := HandleError(fmt.Errorf("add task: %w", New(CodeListPermissionDenied, "cannot modify list")), "pt-BR")

	if got := status.Code(err); got != codes.PermissionDenied {
		t.Fatalf("code = %v, want %v", got, codes.PermissionDenied)
	}
	if got := LocalizedMessage(err); got != "Você não tem permissão para alterar esta lista." {
		t.Fatalf("localized message = %q", got)
	}
	if got := CodeOf(FromGRPCStatus(err)); got != CodeListPermissionDenied {
		t.Fatalf("round trip code = %q, want %q", got, CodeListPermissionDenied)
	}
}

func TestHandleErrorHidesUnknownErrors(t *testing.T) {
	err := HandleError(fmt.Errorf("disk on fire"), "")
	if got := status.Code(err); got != codes.Internal {
		t.Fatalf("code = %v, want %v", got, codes.Internal)
	}
	if got := status.Convert(err).Message(); got != "an unexpected error occurred" {
		t.Fatalf("message = %q", got)
	}
	if HandleError(nil, "") != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestHandleErrorKeepsStatusErrors(t *testing.T) {
	in := status.Error(codes.InvalidArgument, "list id is required")
	if got := HandleError(in, ""); got != in {
		t.Fatalf("HandleError = %v, want original status", got)
	}
	if got := LocalizedMessage(in); got != "list id is required" {
		t.Fatalf("localized message = %q", got)
	}
	if got := FromGRPCStatus(in); got != in {
		t.Fatalf("FromGRPCStatus = %v, want original status", got)
	}
}
