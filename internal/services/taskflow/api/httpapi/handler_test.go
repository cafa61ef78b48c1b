package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/louisbranch/taskflow/internal/services/assistant"
	"github.com/louisbranch/taskflow/internal/services/identity"
	identitysqlite "github.com/louisbranch/taskflow/internal/services/identity/storage/sqlite"
	personalapp "github.com/louisbranch/taskflow/internal/services/personal/app"
	"github.com/louisbranch/taskflow/internal/services/personal/storage/bbolt"
	listapp "github.com/louisbranch/taskflow/internal/services/sharedlist/app"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/realtime"
	listsqlite "github.com/louisbranch/taskflow/internal/services/sharedlist/storage/sqlite"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type testAPI struct {
	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	dir := t.TempDir()
	identityStore, err := identitysqlite.Open(filepath.Join(dir, "identity.db"))
	if err != nil {
		t.Fatalf("open identity store: %v", err)
	}
	signer, err := identity.NewSessionSigner(testKey, "taskflow", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	identities, err := identity.NewService(identityStore, signer, identity.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("new identity service: %v", err)
	}

	listStore, err := listsqlite.Open(filepath.Join(dir, "sharedlists.db"))
	if err != nil {
		t.Fatalf("open shared list store: %v", err)
	}
	broker, err := realtime.NewBroker(listStore)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	lists, err := listapp.NewService(listStore, broker)
	if err != nil {
		t.Fatalf("new shared list service: %v", err)
	}

	personalStore, err := bbolt.Open(filepath.Join(dir, "personal.db"))
	if err != nil {
		t.Fatalf("open personal store: %v", err)
	}
	personalService, err := personalapp.NewService(personalStore)
	if err != nil {
		t.Fatalf("new personal service: %v", err)
	}

	handler, err := NewHandler(Deps{
		Identity:    identities,
		SharedLists: lists,
		Personal:    personalService,
		Assistant:   assistant.New(nil, assistant.Params{}),
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		broker.Close()
		_ = listStore.Close()
		_ = personalStore.Close()
		_ = identityStore.Close()
	})
	return &testAPI{server: server}
}

type apiResponse struct {
	status int
	body   []byte
}

func (r apiResponse) decode(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.body, dst); err != nil {
		t.Fatalf("decode %s: %v", r.body, err)
	}
}

func (r apiResponse) errorCode(t *testing.T) string {
	t.Helper()
	var envelope errorEnvelope
	r.decode(t, &envelope)
	return envelope.Error.Code
}

func (a *testAPI) do(t *testing.T, method string, path string, token string, body any, headers ...string) apiResponse {
	t.Helper()

	var reader io.Reader
	switch value := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return apiResponse{status: resp.StatusCode, body: data}
}

func (a *testAPI) signUp(t *testing.T, email string) string {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":        email,
		"password":     "correct horse",
		"display_name": strings.Split(email, "@")[0],
	})
	if resp.status != http.StatusCreated {
		t.Fatalf("sign up status = %d, body = %s", resp.status, resp.body)
	}
	var session sessionResponse
	resp.decode(t, &session)
	if session.Token == "" {
		t.Fatal("expected session token")
	}
	return session.Token
}

func (a *testAPI) createList(t *testing.T, token string, name string) string {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/shared-lists", token, map[string]string{"name": name})
	if resp.status != http.StatusCreated {
		t.Fatalf("create list status = %d, body = %s", resp.status, resp.body)
	}
	var list sharedlistv1.List
	resp.decode(t, &list)
	return list.ID
}

func (a *testAPI) addTask(t *testing.T, token string, listID string, title string) string {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/tasks", token, map[string]string{"title": title})
	if resp.status != http.StatusCreated {
		t.Fatalf("add task status = %d, body = %s", resp.status, resp.body)
	}
	var created taskIDResponse
	resp.decode(t, &created)
	return created.TaskID
}

func TestUp(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/up", "", nil)
	if resp.status != http.StatusOK || string(resp.body) != "OK" {
		t.Fatalf("up = %d %q", resp.status, resp.body)
	}
}

func TestNewHandlerRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(Deps{}); err == nil {
		t.Fatal("expected error for missing services")
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.signUp(t, "Alice@Example.com")

	resp := api.do(t, http.MethodGet, "/api/auth/session", token, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("session status = %d, body = %s", resp.status, resp.body)
	}
	var session sessionResponse
	resp.decode(t, &session)
	if session.Identity.Email != "alice@example.com" || session.Identity.Kind != string(identity.KindAccount) {
		t.Fatalf("identity = %+v", session.Identity)
	}

	resp = api.do(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "alice@example.com", "password": "wrong password"})
	if resp.status != http.StatusUnauthorized || resp.errorCode(t) != "AUTH_INVALID_CREDENTIALS" {
		t.Fatalf("bad sign in = %d %s", resp.status, resp.body)
	}

	if resp := api.do(t, http.MethodPost, "/api/auth/signout", token, nil); resp.status != http.StatusNoContent {
		t.Fatalf("sign out status = %d, body = %s", resp.status, resp.body)
	}
	resp = api.do(t, http.MethodGet, "/api/auth/session", token, nil)
	if resp.status != http.StatusUnauthorized || resp.errorCode(t) != "AUTH_SESSION_INVALID" {
		t.Fatalf("revoked session = %d %s", resp.status, resp.body)
	}
}

func TestErrorsAreLocalized(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/api/me/tasks", "", nil, "Accept-Language", "pt-BR,pt;q=0.9")
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.status, http.StatusUnauthorized)
	}
	var envelope errorEnvelope
	resp.decode(t, &envelope)
	if envelope.Error.Code != "AUTH_SESSION_INVALID" || envelope.Error.Message != "Sua sessão terminou. Entre novamente." {
		t.Fatalf("error = %+v", envelope.Error)
	}
}

func TestMalformedBody(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":`)
	if resp.status != http.StatusBadRequest || resp.errorCode(t) != "INVALID_REQUEST" {
		t.Fatalf("malformed = %d %s", resp.status, resp.body)
	}
	resp = api.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"a@x.com","extra":true}`)
	if resp.status != http.StatusBadRequest || resp.errorCode(t) != "INVALID_REQUEST" {
		t.Fatalf("unknown field = %d %s", resp.status, resp.body)
	}
}

func TestGuestCannotCreateSharedList(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/auth/guest", "", nil)
	if resp.status != http.StatusOK {
		t.Fatalf("guest status = %d, body = %s", resp.status, resp.body)
	}
	var session sessionResponse
	resp.decode(t, &session)
	if session.Identity.Kind != string(identity.KindGuest) {
		t.Fatalf("kind = %q", session.Identity.Kind)
	}

	resp = api.do(t, http.MethodPost, "/api/shared-lists", session.Token, map[string]string{"name": "Groceries"})
	if resp.status != http.StatusForbidden || resp.errorCode(t) != "IDENTITY_GUEST_NOT_ALLOWED" {
		t.Fatalf("guest create = %d %s", resp.status, resp.body)
	}
}

func TestInvitationPreviewAndAccept(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	alice := api.signUp(t, "alice@example.com")
	bob := api.signUp(t, "bob@example.com")
	listID := api.createList(t, alice, "Groceries")
	for _, title := range []string{"Milk", "Eggs", "Bread", "Butter"} {
		api.addTask(t, alice, listID, title)
	}

	var view sharedlistv1.EvaluateAccessResponse
	resp := api.do(t, http.MethodGet, "/open?shared="+listID, bob, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("open status = %d, body = %s", resp.status, resp.body)
	}
	resp.decode(t, &view)
	if view.Access.Level != "no-access" || view.List != nil {
		t.Fatalf("stranger view = %+v", view)
	}

	resp = api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/tasks", bob, map[string]string{"title": "Sneaky"})
	if resp.status != http.StatusForbidden || resp.errorCode(t) != "SHARED_LIST_PERMISSION_DENIED" {
		t.Fatalf("stranger add = %d %s", resp.status, resp.body)
	}

	if resp := api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/invitations", alice, map[string]string{"email": "Bob@Example.com"}); resp.status != http.StatusNoContent {
		t.Fatalf("invite status = %d, body = %s", resp.status, resp.body)
	}

	view = sharedlistv1.EvaluateAccessResponse{}
	api.do(t, http.MethodGet, "/api/shared-lists/"+listID, bob, nil).decode(t, &view)
	if view.Access.Level != "pending-invitation" || view.Access.CanModify || view.List == nil || len(view.List.Tasks) != 3 {
		t.Fatalf("preview view = %+v", view)
	}

	resp = api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/invitations/accept", bob, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("accept status = %d, body = %s", resp.status, resp.body)
	}
	var accessResp sharedlistv1.Access
	resp.decode(t, &accessResp)
	if accessResp.Level != "collaborator-read-write" || !accessResp.CanModify {
		t.Fatalf("accept access = %+v", accessResp)
	}
	if resp := api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/invitations/accept", bob, nil); resp.status != http.StatusOK {
		t.Fatalf("second accept status = %d, body = %s", resp.status, resp.body)
	}

	resp = api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/invitations/reject", bob, nil)
	if resp.status != http.StatusNotFound || resp.errorCode(t) != "INVITATION_NOT_FOUND" {
		t.Fatalf("reject after accept = %d %s", resp.status, resp.body)
	}
}

func TestSharedTaskMutations(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	alice := api.signUp(t, "alice@example.com")
	bob := api.signUp(t, "bob@example.com")
	listID := api.createList(t, alice, "Chores")
	taskID := api.addTask(t, alice, listID, "Laundry")

	if resp := api.do(t, http.MethodPut, "/api/shared-lists/"+listID+"/access-type", alice, map[string]string{"access_type": "public"}); resp.status != http.StatusNoContent {
		t.Fatalf("set access type status = %d, body = %s", resp.status, resp.body)
	}

	resp := api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/tasks/"+taskID+"/toggle", bob, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("toggle status = %d, body = %s", resp.status, resp.body)
	}
	var toggled toggleResponse
	resp.decode(t, &toggled)
	if !toggled.Completed {
		t.Fatal("expected completed after toggle")
	}

	resp = api.do(t, http.MethodPatch, "/api/shared-lists/"+listID+"/tasks/"+taskID, bob, map[string]any{"title": "Fold laundry", "priority": "HIGH"})
	if resp.status != http.StatusNoContent {
		t.Fatalf("update status = %d, body = %s", resp.status, resp.body)
	}

	var listed sharedlistv1.ListTasksResponse
	api.do(t, http.MethodGet, "/api/shared-lists/"+listID+"/tasks?filter="+url.QueryEscape(`priority = "high"`), bob, nil).decode(t, &listed)
	if listed.Access.Level != "public-read-write" || len(listed.Tasks) != 1 || listed.Tasks[0].Title != "Fold laundry" || listed.Tasks[0].UpdatedBy != "bob@example.com" {
		t.Fatalf("listed = %+v", listed)
	}

	resp = api.do(t, http.MethodPut, "/api/shared-lists/"+listID+"/access-type", bob, map[string]string{"access_type": "private"})
	if resp.status != http.StatusForbidden || resp.errorCode(t) != "SHARED_LIST_NOT_COLLABORATOR" {
		t.Fatalf("non-collaborator access change = %d %s", resp.status, resp.body)
	}

	if resp := api.do(t, http.MethodDelete, "/api/shared-lists/"+listID+"/tasks/"+taskID, alice, nil); resp.status != http.StatusNoContent {
		t.Fatalf("delete status = %d, body = %s", resp.status, resp.body)
	}
	resp = api.do(t, http.MethodPost, "/api/shared-lists/"+listID+"/tasks/"+taskID+"/toggle", alice, nil)
	if resp.status != http.StatusNotFound || resp.errorCode(t) != "TASK_NOT_FOUND" {
		t.Fatalf("toggle deleted = %d %s", resp.status, resp.body)
	}
}

func TestPersonalData(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	var session sessionResponse
	api.do(t, http.MethodPost, "/api/auth/guest", "", nil).decode(t, &session)
	token := session.Token

	resp := api.do(t, http.MethodPost, "/api/me/task-lists", token, map[string]string{"name": "Work", "color": "#336699"})
	if resp.status != http.StatusCreated {
		t.Fatalf("create task list status = %d, body = %s", resp.status, resp.body)
	}
	var taskList struct {
		ID string `json:"id"`
	}
	resp.decode(t, &taskList)

	resp = api.do(t, http.MethodPost, "/api/me/tasks", token, map[string]string{"title": "Write report", "list_id": taskList.ID})
	if resp.status != http.StatusCreated {
		t.Fatalf("create task status = %d, body = %s", resp.status, resp.body)
	}
	var task struct {
		ID       string `json:"id"`
		Priority string `json:"priority"`
	}
	resp.decode(t, &task)
	if task.Priority != "medium" {
		t.Fatalf("priority = %q, want medium", task.Priority)
	}

	if resp := api.do(t, http.MethodPatch, "/api/me/tasks/"+task.ID, token, map[string]any{"completed": true}); resp.status != http.StatusOK {
		t.Fatalf("update task status = %d, body = %s", resp.status, resp.body)
	}
	var open struct {
		Tasks []json.RawMessage `json:"tasks"`
	}
	api.do(t, http.MethodGet, "/api/me/tasks?completed=false", token, nil).decode(t, &open)
	if open.Tasks == nil || len(open.Tasks) != 0 {
		t.Fatalf("open tasks = %v, want empty list", open.Tasks)
	}
	if resp := api.do(t, http.MethodGet, "/api/me/tasks?completed=maybe", token, nil); resp.status != http.StatusBadRequest {
		t.Fatalf("bad completed status = %d", resp.status)
	}

	var first, second struct {
		ID       string `json:"id"`
		Insights string `json:"insights"`
	}
	api.do(t, http.MethodPut, "/api/me/reflections/2026-03-03", token, map[string]string{"insights": "draft"}).decode(t, &first)
	api.do(t, http.MethodPut, "/api/me/reflections/2026-03-03", token, map[string]string{"insights": "final"}).decode(t, &second)
	if first.ID == "" || first.ID != second.ID || second.Insights != "final" {
		t.Fatalf("reflections = %+v, %+v", first, second)
	}

	resp = api.do(t, http.MethodPut, "/api/me/settings", token, map[string]any{"theme": "Dark"})
	if resp.status != http.StatusOK {
		t.Fatalf("settings status = %d, body = %s", resp.status, resp.body)
	}
	var settings struct {
		Theme string `json:"theme"`
	}
	resp.decode(t, &settings)
	if settings.Theme != "dark" {
		t.Fatalf("theme = %q", settings.Theme)
	}

	resp = api.do(t, http.MethodPost, "/api/me/focus/start", token, nil)
	if resp.status != http.StatusOK {
		t.Fatalf("focus start status = %d, body = %s", resp.status, resp.body)
	}
	var focusResp focusResponse
	resp.decode(t, &focusResp)
	if focusResp.State.Timer.Status != "running" || focusResp.RemainingSeconds <= 0 {
		t.Fatalf("focus = %+v", focusResp)
	}
	resp = api.do(t, http.MethodPost, "/api/me/focus/resume", token, nil)
	if resp.status != http.StatusConflict || resp.errorCode(t) != "FOCUS_INVALID_ACTION" {
		t.Fatalf("resume running = %d %s", resp.status, resp.body)
	}
}

func TestAssistantChatFallsBack(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.signUp(t, "alice@example.com")

	resp := api.do(t, http.MethodPost, "/api/assistant/chat", token, map[string]string{"prompt": "help me focus"})
	if resp.status != http.StatusOK {
		t.Fatalf("chat status = %d, body = %s", resp.status, resp.body)
	}
	var reply chatResponse
	resp.decode(t, &reply)
	if !reply.Fallback || reply.Reply == "" {
		t.Fatalf("reply = %+v", reply)
	}

	resp = api.do(t, http.MethodPost, "/api/assistant/chat", token, map[string]string{"prompt": "  "})
	if resp.status != http.StatusBadRequest || resp.errorCode(t) != "ASSISTANT_PROMPT_EMPTY" {
		t.Fatalf("empty prompt = %d %s", resp.status, resp.body)
	}
}

func TestOAuthUnknownProvider(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	resp := api.do(t, http.MethodGet, "/api/auth/oauth/myspace/start", "", nil)
	if resp.status != http.StatusNotFound || resp.errorCode(t) != "OAUTH_PROVIDER_UNKNOWN" {
		t.Fatalf("unknown provider = %d %s", resp.status, resp.body)
	}
}
