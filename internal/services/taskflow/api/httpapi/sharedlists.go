package httpapi

import (
	"net/http"
	"strings"

	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	listapp "github.com/louisbranch/taskflow/internal/services/sharedlist/app"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

type createListRequest struct {
	Name string `json:"name"`
}

type accessTypeRequest struct {
	AccessType string `json:"access_type"`
}

type inviteRequest struct {
	Email string `json:"email"`
}

type sharedTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	Project     string `json:"project"`
}

type sharedTaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
	Project     *string `json:"project"`
}

type taskIDResponse struct {
	TaskID string `json:"task_id"`
}

type toggleResponse struct {
	Completed bool `json:"completed"`
}

func viewResponse(view listapp.View) sharedlistv1.EvaluateAccessResponse {
	return sharedlistv1.EvaluateAccessResponse{
		Access: sharedlistv1.AccessFromDomain(view.Decision),
		List:   sharedlistv1.ListFromDomain(view.List),
	}
}

func parsePriority(value string) sharedlist.Priority {
	return sharedlist.Priority(strings.ToLower(strings.TrimSpace(value)))
}

// openDeepLink answers /open?shared={listId} with the access decision and
// whatever part of the list it permits. Denied access is a normal answer.
func (h *handler) openDeepLink(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	view, err := h.SharedLists.Open(r.Context(), actor, r.URL.Query().Get("shared"))
	if err != nil {
		writeError(w, r, "open shared link", err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(view))
}

func (h *handler) createSharedList(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req createListRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create shared list", err)
		return
	}
	list, err := h.SharedLists.CreateList(r.Context(), actor, req.Name)
	if err != nil {
		writeError(w, r, "create shared list", err)
		return
	}
	writeJSON(w, http.StatusCreated, sharedlistv1.ListFromDomain(&list))
}

func (h *handler) getSharedList(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	view, err := h.SharedLists.Open(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, "get shared list", err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(view))
}

func (h *handler) setAccessType(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req accessTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "set access type", err)
		return
	}
	accessType := sharedlist.AccessType(strings.ToLower(strings.TrimSpace(req.AccessType)))
	if err := h.SharedLists.SetAccessType(r.Context(), actor, r.PathValue("id"), accessType); err != nil {
		writeError(w, r, "set access type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) invite(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "invite", err)
		return
	}
	if err := h.SharedLists.Invite(r.Context(), actor, r.PathValue("id"), req.Email); err != nil {
		writeError(w, r, "invite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) acceptInvitation(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	decision, err := h.SharedLists.AcceptInvitation(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, "accept invitation", err)
		return
	}
	writeJSON(w, http.StatusOK, sharedlistv1.AccessFromDomain(decision))
}

func (h *handler) rejectInvitation(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	if err := h.SharedLists.RejectInvitation(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, "reject invitation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listSharedTasks(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	tasks, decision, err := h.SharedLists.ListTasks(r.Context(), actor, r.PathValue("id"), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, "list shared tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, sharedlistv1.ListTasksResponse{
		Access: sharedlistv1.AccessFromDomain(decision),
		Tasks:  sharedlistv1.TasksFromDomain(tasks),
	})
}

func (h *handler) addSharedTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req sharedTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "add shared task", err)
		return
	}
	taskID, err := h.SharedLists.AddTask(r.Context(), actor, r.PathValue("id"), listapp.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    parsePriority(req.Priority),
		DueDate:     req.DueDate,
		Project:     req.Project,
	})
	if err != nil {
		writeError(w, r, "add shared task", err)
		return
	}
	writeJSON(w, http.StatusCreated, taskIDResponse{TaskID: taskID})
}

func (h *handler) updateSharedTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req sharedTaskPatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "update shared task", err)
		return
	}
	update := listapp.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		DueDate:     req.DueDate,
		Project:     req.Project,
	}
	if req.Priority != nil {
		priority := parsePriority(*req.Priority)
		update.Priority = &priority
	}
	if err := h.SharedLists.UpdateTask(r.Context(), actor, r.PathValue("id"), r.PathValue("taskId"), update); err != nil {
		writeError(w, r, "update shared task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteSharedTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	if err := h.SharedLists.DeleteTask(r.Context(), actor, r.PathValue("id"), r.PathValue("taskId")); err != nil {
		writeError(w, r, "delete shared task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) toggleSharedTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	completed, err := h.SharedLists.ToggleTask(r.Context(), actor, r.PathValue("id"), r.PathValue("taskId"))
	if err != nil {
		writeError(w, r, "toggle shared task", err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Completed: completed})
}
