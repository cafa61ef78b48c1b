// Package httpapi serves the taskflow JSON API and the realtime WebSocket.
//
// Requests authenticate with a bearer session token. Errors are written as
// {"error":{"code","message"}} with the message localized from
// Accept-Language.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/errors/i18n"
	"github.com/louisbranch/taskflow/internal/services/assistant"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/personal"
	personalapp "github.com/louisbranch/taskflow/internal/services/personal/app"
	"github.com/louisbranch/taskflow/internal/services/personal/focus"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
	listapp "github.com/louisbranch/taskflow/internal/services/sharedlist/app"
)

const maxBodyBytes = 1 << 20

// IdentityService is the identity surface used by the API.
type IdentityService interface {
	SignUp(ctx context.Context, email string, password string, displayName string) (identity.Session, error)
	SignIn(ctx context.Context, email string, password string) (identity.Session, error)
	Guest(ctx context.Context, guestID string) (identity.Session, error)
	Authenticate(ctx context.Context, token string) (identity.Identity, error)
	SignOut(ctx context.Context, token string) error
	Watch(ctx context.Context, sessionID string) (<-chan identity.SessionEvent, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, newPassword string) error
	StartOAuth(ctx context.Context, providerName string, returnTo string) (string, error)
	CompleteOAuth(ctx context.Context, providerName string, code string, state string) (identity.OAuthResult, error)
}

// SharedListService is the shared-list surface used by the API.
type SharedListService interface {
	CreateList(ctx context.Context, actor identity.Identity, name string) (sharedlist.List, error)
	Open(ctx context.Context, actor identity.Identity, listID string) (listapp.View, error)
	ListTasks(ctx context.Context, actor identity.Identity, listID string, filterExpr string) ([]sharedlist.Task, access.Decision, error)
	AddTask(ctx context.Context, actor identity.Identity, listID string, input listapp.TaskInput) (string, error)
	UpdateTask(ctx context.Context, actor identity.Identity, listID string, taskID string, update listapp.TaskUpdate) error
	DeleteTask(ctx context.Context, actor identity.Identity, listID string, taskID string) error
	ToggleTask(ctx context.Context, actor identity.Identity, listID string, taskID string) (bool, error)
	SetAccessType(ctx context.Context, actor identity.Identity, listID string, accessType sharedlist.AccessType) error
	Invite(ctx context.Context, actor identity.Identity, listID string, email string) error
	AcceptInvitation(ctx context.Context, actor identity.Identity, listID string) (access.Decision, error)
	RejectInvitation(ctx context.Context, actor identity.Identity, listID string) error
	Watch(ctx context.Context, actor identity.Identity, listID string, viewID string, observer listapp.Observer) (*listapp.Watch, error)
}

// PersonalService is the personal data surface used by the API.
type PersonalService interface {
	CreateTask(ctx context.Context, actor identity.Identity, input personalapp.TaskInput) (personal.Task, error)
	ListTasks(ctx context.Context, actor identity.Identity, query personalapp.TaskQuery) ([]personal.Task, error)
	UpdateTask(ctx context.Context, actor identity.Identity, taskID string, update personalapp.TaskUpdate) (personal.Task, error)
	DeleteTask(ctx context.Context, actor identity.Identity, taskID string) error
	CreateTaskList(ctx context.Context, actor identity.Identity, name string, color string) (personal.TaskList, error)
	ListTaskLists(ctx context.Context, actor identity.Identity) ([]personal.TaskList, error)
	DeleteTaskList(ctx context.Context, actor identity.Identity, listID string) error
	SaveReflection(ctx context.Context, actor identity.Identity, date string, input personalapp.ReflectionInput) (personal.Reflection, error)
	GetReflection(ctx context.Context, actor identity.Identity, date string) (personal.Reflection, error)
	ListReflections(ctx context.Context, actor identity.Identity) ([]personal.Reflection, error)
	AddPlannerEvent(ctx context.Context, actor identity.Identity, input personalapp.PlannerEventInput) (personal.PlannerEvent, error)
	ListPlannerEvents(ctx context.Context, actor identity.Identity, date string) ([]personal.PlannerEvent, error)
	DeletePlannerEvent(ctx context.Context, actor identity.Identity, eventID string) error
	GetSettings(ctx context.Context, actor identity.Identity) (personal.Settings, error)
	UpdateSettings(ctx context.Context, actor identity.Identity, update personalapp.SettingsUpdate) (personal.Settings, error)
	CompleteOnboarding(ctx context.Context, actor identity.Identity, flag string) (personal.Settings, error)
	Focus(ctx context.Context, actor identity.Identity) (personalapp.FocusView, error)
	FocusAction(ctx context.Context, actor identity.Identity, action focus.Action) (personalapp.FocusView, error)
}

// AssistantService answers chat prompts.
type AssistantService interface {
	Reply(ctx context.Context, prompt string, openTasks []string) (assistant.Reply, error)
}

// Deps are the services behind the API.
type Deps struct {
	Identity    IdentityService
	SharedLists SharedListService
	Personal    PersonalService
	Assistant   AssistantService
}

func (d Deps) validate() error {
	switch {
	case d.Identity == nil:
		return errors.New("identity service is required")
	case d.SharedLists == nil:
		return errors.New("shared list service is required")
	case d.Personal == nil:
		return errors.New("personal service is required")
	case d.Assistant == nil:
		return errors.New("assistant is required")
	}
	return nil
}

type handler struct {
	Deps
}

// actionFunc handles an authenticated request.
type actionFunc func(w http.ResponseWriter, r *http.Request, actor identity.Identity)

// NewHandler builds the API routes.
func NewHandler(deps Deps) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	h := &handler{Deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/auth/signup", h.signUp)
	mux.HandleFunc("POST /api/auth/signin", h.signIn)
	mux.HandleFunc("POST /api/auth/guest", h.guest)
	mux.HandleFunc("POST /api/auth/signout", h.signOut)
	mux.HandleFunc("POST /api/auth/password-reset", h.requestPasswordReset)
	mux.HandleFunc("POST /api/auth/password-reset/confirm", h.confirmPasswordReset)
	mux.HandleFunc("GET /api/auth/oauth/{provider}/start", h.startOAuth)
	mux.HandleFunc("GET /api/auth/oauth/{provider}/callback", h.oauthCallback)
	mux.HandleFunc("GET /api/auth/session", h.authed(h.currentSession))

	mux.HandleFunc("GET /open", h.authed(h.openDeepLink))
	mux.HandleFunc("POST /api/shared-lists", h.authed(h.createSharedList))
	mux.HandleFunc("GET /api/shared-lists/{id}", h.authed(h.getSharedList))
	mux.HandleFunc("PUT /api/shared-lists/{id}/access-type", h.authed(h.setAccessType))
	mux.HandleFunc("POST /api/shared-lists/{id}/invitations", h.authed(h.invite))
	mux.HandleFunc("POST /api/shared-lists/{id}/invitations/accept", h.authed(h.acceptInvitation))
	mux.HandleFunc("POST /api/shared-lists/{id}/invitations/reject", h.authed(h.rejectInvitation))
	mux.HandleFunc("GET /api/shared-lists/{id}/tasks", h.authed(h.listSharedTasks))
	mux.HandleFunc("POST /api/shared-lists/{id}/tasks", h.authed(h.addSharedTask))
	mux.HandleFunc("PATCH /api/shared-lists/{id}/tasks/{taskId}", h.authed(h.updateSharedTask))
	mux.HandleFunc("DELETE /api/shared-lists/{id}/tasks/{taskId}", h.authed(h.deleteSharedTask))
	mux.HandleFunc("POST /api/shared-lists/{id}/tasks/{taskId}/toggle", h.authed(h.toggleSharedTask))

	mux.HandleFunc("GET /api/me/tasks", h.authed(h.listTasks))
	mux.HandleFunc("POST /api/me/tasks", h.authed(h.createTask))
	mux.HandleFunc("PATCH /api/me/tasks/{id}", h.authed(h.updateTask))
	mux.HandleFunc("DELETE /api/me/tasks/{id}", h.authed(h.deleteTask))
	mux.HandleFunc("GET /api/me/task-lists", h.authed(h.listTaskLists))
	mux.HandleFunc("POST /api/me/task-lists", h.authed(h.createTaskList))
	mux.HandleFunc("DELETE /api/me/task-lists/{id}", h.authed(h.deleteTaskList))
	mux.HandleFunc("GET /api/me/reflections", h.authed(h.listReflections))
	mux.HandleFunc("GET /api/me/reflections/{date}", h.authed(h.getReflection))
	mux.HandleFunc("PUT /api/me/reflections/{date}", h.authed(h.saveReflection))
	mux.HandleFunc("GET /api/me/planner", h.authed(h.listPlannerEvents))
	mux.HandleFunc("POST /api/me/planner", h.authed(h.addPlannerEvent))
	mux.HandleFunc("DELETE /api/me/planner/{id}", h.authed(h.deletePlannerEvent))
	mux.HandleFunc("GET /api/me/settings", h.authed(h.getSettings))
	mux.HandleFunc("PUT /api/me/settings", h.authed(h.updateSettings))
	mux.HandleFunc("POST /api/me/onboarding/{flag}", h.authed(h.completeOnboarding))
	mux.HandleFunc("GET /api/me/focus", h.authed(h.getFocus))
	mux.HandleFunc("POST /api/me/focus/{action}", h.authed(h.focusAction))

	mux.HandleFunc("POST /api/assistant/chat", h.authed(h.chat))

	mux.Handle("GET /ws", h.wsHandler())

	return mux, nil
}

// authed resolves the bearer token and passes the identity to next.
func (h *handler) authed(next actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.authenticate(r, bearerToken(r))
		if err != nil {
			writeError(w, r, "authenticate", err)
			return
		}
		next(w, r.WithContext(identity.WithIdentity(r.Context(), actor)), actor)
	}
}

func (h *handler) authenticate(r *http.Request, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "session token is required")
	}
	return h.Identity.Authenticate(r.Context(), token)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// localizedError renders err for the request locale. Errors without a
// domain code are reported as UNKNOWN.
func localizedError(r *http.Request, err error) (int, errorBody) {
	code := apperrors.CodeOf(err)
	catalog := i18n.ForAcceptLanguage(r.Header.Get("Accept-Language"))
	return code.HTTPStatus(), errorBody{
		Code:    string(code),
		Message: catalog.Format(string(code), apperrors.MetadataOf(err)),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := localizedError(r, err)
	if status >= http.StatusInternalServerError {
		log.Printf("httpapi: %s failed method=%s path=%s code=%s err=%v", op, r.Method, r.URL.Path, body.Code, err)
	} else {
		log.Printf("httpapi: %s rejected method=%s path=%s code=%s", op, r.Method, r.URL.Path, body.Code)
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst unchanged.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "decode request body", err)
	}
	return nil
}
