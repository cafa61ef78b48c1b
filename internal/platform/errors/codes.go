// Package errors provides structured domain errors with transport mappings.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown        Code = "UNKNOWN"
	// CodeInvalidRequest reports a malformed request body or frame.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Storage errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeUnavailable Code = "STORE_UNAVAILABLE"

	// Shared list errors
	CodeListNameEmpty         Code = "SHARED_LIST_NAME_EMPTY"
	CodeListInvalidAccessType Code = "SHARED_LIST_INVALID_ACCESS_TYPE"
	CodeListAccessDenied      Code = "SHARED_LIST_ACCESS_DENIED"
	CodeListPermissionDenied  Code = "SHARED_LIST_PERMISSION_DENIED"
	CodeListNotCollaborator   Code = "SHARED_LIST_NOT_COLLABORATOR"

	// Invitation errors
	CodeInvitationEmailInvalid Code = "INVITATION_EMAIL_INVALID"
	CodeInvitationNotFound     Code = "INVITATION_NOT_FOUND"

	// Task errors
	CodeTaskTitleEmpty      Code = "TASK_TITLE_EMPTY"
	CodeTaskInvalidPriority Code = "TASK_INVALID_PRIORITY"
	CodeTaskInvalidDueDate  Code = "TASK_INVALID_DUE_DATE"
	CodeTaskNotFound        Code = "TASK_NOT_FOUND"
	CodeFilterInvalid       Code = "FILTER_INVALID"

	// Identity errors
	CodeGuestNotAllowed        Code = "IDENTITY_GUEST_NOT_ALLOWED"
	CodeAuthEmailInvalid       Code = "AUTH_EMAIL_INVALID"
	CodeAuthPasswordTooShort   Code = "AUTH_PASSWORD_TOO_SHORT"
	CodeAuthEmailTaken         Code = "AUTH_EMAIL_TAKEN"
	CodeAuthInvalidCredentials Code = "AUTH_INVALID_CREDENTIALS"
	CodeAuthSessionInvalid     Code = "AUTH_SESSION_INVALID"
	CodeAuthResetTokenInvalid  Code = "AUTH_RESET_TOKEN_INVALID"
	CodeOAuthProviderUnknown   Code = "OAUTH_PROVIDER_UNKNOWN"
	CodeOAuthStateInvalid      Code = "OAUTH_STATE_INVALID"
	CodeOAuthExchangeFailed    Code = "OAUTH_EXCHANGE_FAILED"

	// Personal data errors
	CodeReflectionDateInvalid Code = "REFLECTION_DATE_INVALID"
	CodePlannerEventInvalid   Code = "PLANNER_EVENT_INVALID"
	CodeTaskListNameEmpty     Code = "TASK_LIST_NAME_EMPTY"
	CodeSettingsInvalidTheme  Code = "SETTINGS_INVALID_THEME"
	CodeSettingsInvalidFocus  Code = "SETTINGS_INVALID_FOCUS"
	CodeOnboardingFlagInvalid Code = "ONBOARDING_FLAG_INVALID"
	CodeFocusInvalidAction    Code = "FOCUS_INVALID_ACTION"

	// Assistant errors
	CodeAssistantPromptEmpty Code = "ASSISTANT_PROMPT_EMPTY"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidRequest,
		CodeListNameEmpty,
		CodeListInvalidAccessType,
		CodeInvitationEmailInvalid,
		CodeTaskTitleEmpty,
		CodeTaskInvalidPriority,
		CodeTaskInvalidDueDate,
		CodeFilterInvalid,
		CodeAuthEmailInvalid,
		CodeAuthPasswordTooShort,
		CodeAuthResetTokenInvalid,
		CodeOAuthStateInvalid,
		CodeReflectionDateInvalid,
		CodePlannerEventInvalid,
		CodeTaskListNameEmpty,
		CodeSettingsInvalidTheme,
		CodeSettingsInvalidFocus,
		CodeOnboardingFlagInvalid,
		CodeAssistantPromptEmpty:
		return codes.InvalidArgument

	case CodeFocusInvalidAction:
		return codes.FailedPrecondition

	case CodeListAccessDenied,
		CodeListPermissionDenied,
		CodeListNotCollaborator,
		CodeGuestNotAllowed:
		return codes.PermissionDenied

	case CodeAuthInvalidCredentials,
		CodeAuthSessionInvalid:
		return codes.Unauthenticated

	case CodeNotFound,
		CodeInvitationNotFound,
		CodeTaskNotFound,
		CodeOAuthProviderUnknown:
		return codes.NotFound

	case CodeAuthEmailTaken:
		return codes.AlreadyExists

	case CodeUnavailable,
		CodeOAuthExchangeFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
