package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/personal"
	personalapp "github.com/louisbranch/taskflow/internal/services/personal/app"
	"github.com/louisbranch/taskflow/internal/services/personal/focus"
)

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	Project     string `json:"project"`
	ListID      string `json:"list_id"`
}

type taskPatch struct {
	sharedTaskPatch
	ListID *string `json:"list_id"`
}

type taskListRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type reflectionRequest struct {
	Accomplishments string `json:"accomplishments"`
	Challenges      string `json:"challenges"`
	Insights        string `json:"insights"`
}

type plannerEventRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
	Title string `json:"title"`
	Notes string `json:"notes"`
}

type settingsRequest struct {
	Theme *string       `json:"theme"`
	Focus *focus.Config `json:"focus"`
}

type focusResponse struct {
	State            personal.FocusState `json:"state"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	EarnedSeconds    int64               `json:"earned_seconds"`
}

func focusFromView(view personalapp.FocusView) focusResponse {
	return focusResponse{
		State:            view.FocusState,
		RemainingSeconds: int64(view.Remaining / time.Second),
		EarnedSeconds:    int64(view.Earned / time.Second),
	}
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	query := personalapp.TaskQuery{ListID: r.URL.Query().Get("list_id")}
	if raw := strings.TrimSpace(r.URL.Query().Get("completed")); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, "list tasks", apperrors.Wrap(apperrors.CodeInvalidRequest, "parse completed", err))
			return
		}
		query.Completed = &completed
	}
	tasks, err := h.Personal.ListTasks(r.Context(), actor, query)
	if err != nil {
		writeError(w, r, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create task", err)
		return
	}
	task, err := h.Personal.CreateTask(r.Context(), actor, personalapp.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    parsePriority(req.Priority),
		DueDate:     req.DueDate,
		Project:     req.Project,
		ListID:      req.ListID,
	})
	if err != nil {
		writeError(w, r, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req taskPatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "update task", err)
		return
	}
	update := personalapp.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		DueDate:     req.DueDate,
		Project:     req.Project,
		ListID:      req.ListID,
	}
	if req.Priority != nil {
		priority := parsePriority(*req.Priority)
		update.Priority = &priority
	}
	task, err := h.Personal.UpdateTask(r.Context(), actor, r.PathValue("id"), update)
	if err != nil {
		writeError(w, r, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	if err := h.Personal.DeleteTask(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listTaskLists(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	lists, err := h.Personal.ListTaskLists(r.Context(), actor)
	if err != nil {
		writeError(w, r, "list task lists", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_lists": nonNil(lists)})
}

func (h *handler) createTaskList(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req taskListRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create task list", err)
		return
	}
	list, err := h.Personal.CreateTaskList(r.Context(), actor, req.Name, req.Color)
	if err != nil {
		writeError(w, r, "create task list", err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (h *handler) deleteTaskList(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	if err := h.Personal.DeleteTaskList(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, "delete task list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listReflections(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	reflections, err := h.Personal.ListReflections(r.Context(), actor)
	if err != nil {
		writeError(w, r, "list reflections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reflections": nonNil(reflections)})
}

func (h *handler) getReflection(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	reflection, err := h.Personal.GetReflection(r.Context(), actor, r.PathValue("date"))
	if err != nil {
		writeError(w, r, "get reflection", err)
		return
	}
	writeJSON(w, http.StatusOK, reflection)
}

func (h *handler) saveReflection(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req reflectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "save reflection", err)
		return
	}
	reflection, err := h.Personal.SaveReflection(r.Context(), actor, r.PathValue("date"), personalapp.ReflectionInput{
		Accomplishments: req.Accomplishments,
		Challenges:      req.Challenges,
		Insights:        req.Insights,
	})
	if err != nil {
		writeError(w, r, "save reflection", err)
		return
	}
	writeJSON(w, http.StatusOK, reflection)
}

func (h *handler) listPlannerEvents(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	events, err := h.Personal.ListPlannerEvents(r.Context(), actor, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, "list planner events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (h *handler) addPlannerEvent(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req plannerEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "add planner event", err)
		return
	}
	event, err := h.Personal.AddPlannerEvent(r.Context(), actor, personalapp.PlannerEventInput{
		Date:  req.Date,
		Start: req.Start,
		End:   req.End,
		Title: req.Title,
		Notes: req.Notes,
	})
	if err != nil {
		writeError(w, r, "add planner event", err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *handler) deletePlannerEvent(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	if err := h.Personal.DeletePlannerEvent(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, "delete planner event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	settings, err := h.Personal.GetSettings(r.Context(), actor)
	if err != nil {
		writeError(w, r, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "update settings", err)
		return
	}
	update := personalapp.SettingsUpdate{Focus: req.Focus}
	if req.Theme != nil {
		theme := personal.Theme(strings.ToLower(strings.TrimSpace(*req.Theme)))
		update.Theme = &theme
	}
	settings, err := h.Personal.UpdateSettings(r.Context(), actor, update)
	if err != nil {
		writeError(w, r, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handler) completeOnboarding(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	settings, err := h.Personal.CompleteOnboarding(r.Context(), actor, r.PathValue("flag"))
	if err != nil {
		writeError(w, r, "complete onboarding", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handler) getFocus(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	view, err := h.Personal.Focus(r.Context(), actor)
	if err != nil {
		writeError(w, r, "get focus", err)
		return
	}
	writeJSON(w, http.StatusOK, focusFromView(view))
}

func (h *handler) focusAction(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	action := focus.Action(strings.ToLower(strings.TrimSpace(r.PathValue("action"))))
	view, err := h.Personal.FocusAction(r.Context(), actor, action)
	if err != nil {
		writeError(w, r, "focus action", err)
		return
	}
	writeJSON(w, http.StatusOK, focusFromView(view))
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
