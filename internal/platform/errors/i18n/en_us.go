package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
var enUSMessages = map[Code]string{
	"UNKNOWN":                         "Something went wrong. Please try again.",
	"INVALID_REQUEST":                 "The request could not be read.",
	"NOT_FOUND":                       "The requested item could not be found.",
	"STORE_UNAVAILABLE":               "We could not reach the server. Please reload the page.",
	"SHARED_LIST_NAME_EMPTY":          "Give the list a name.",
	"SHARED_LIST_INVALID_ACCESS_TYPE": "Access type must be private or public.",
	"SHARED_LIST_ACCESS_DENIED":       "You do not have access to this list.",
	"SHARED_LIST_PERMISSION_DENIED":   "You do not have permission to change this list.",
	"SHARED_LIST_NOT_COLLABORATOR":    "Only collaborators can do that.",
	"INVITATION_EMAIL_INVALID":        "{{.Email}} is not a valid email address.",
	"INVITATION_NOT_FOUND":            "There is no pending invitation for you on this list.",
	"TASK_TITLE_EMPTY":                "Give the task a title.",
	"TASK_INVALID_PRIORITY":           "Priority must be low, medium, or high.",
	"TASK_INVALID_DUE_DATE":           "Due date must look like 2006-01-02.",
	"TASK_NOT_FOUND":                  "That task no longer exists.",
	"FILTER_INVALID":                  "The filter could not be understood.",
	"IDENTITY_GUEST_NOT_ALLOWED":      "Sign in with an account to use this feature.",
	"AUTH_EMAIL_INVALID":              "Enter a valid email address.",
	"AUTH_PASSWORD_TOO_SHORT":         "Passwords must be at least {{.Min}} characters.",
	"AUTH_EMAIL_TAKEN":                "An account already exists for this email.",
	"AUTH_INVALID_CREDENTIALS":        "Email or password is incorrect.",
	"AUTH_SESSION_INVALID":            "Your session has ended. Please sign in again.",
	"AUTH_RESET_TOKEN_INVALID":        "This reset link is invalid or has expired.",
	"OAUTH_PROVIDER_UNKNOWN":          "That sign-in provider is not available.",
	"OAUTH_STATE_INVALID":             "The sign-in attempt expired. Please try again.",
	"OAUTH_EXCHANGE_FAILED":           "The sign-in provider did not respond. Please try again.",
	"REFLECTION_DATE_INVALID":         "Reflection dates must look like 2006-01-02.",
	"PLANNER_EVENT_INVALID":           "Planner events need a title, a date, and an end after the start.",
	"TASK_LIST_NAME_EMPTY":            "Give the task list a name.",
	"SETTINGS_INVALID_THEME":          "Theme must be light or dark.",
	"SETTINGS_INVALID_FOCUS":          "Timer lengths must be between 1 and 240 minutes.",
	"ONBOARDING_FLAG_INVALID":         "Unknown onboarding step.",
	"FOCUS_INVALID_ACTION":            "The timer cannot do that right now.",
	"ASSISTANT_PROMPT_EMPTY":          "Type a message first.",
}
