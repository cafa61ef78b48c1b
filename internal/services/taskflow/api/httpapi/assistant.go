package httpapi

import (
	"log"
	"net/http"

	"github.com/louisbranch/taskflow/internal/services/identity"
	personalapp "github.com/louisbranch/taskflow/internal/services/personal/app"
)

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback"`
}

// chat answers a prompt grounded on the caller's open private tasks. A task
// lookup failure only drops the grounding.
func (h *handler) chat(w http.ResponseWriter, r *http.Request, actor identity.Identity) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "assistant chat", err)
		return
	}

	var openTasks []string
	open := false
	tasks, err := h.Personal.ListTasks(r.Context(), actor, personalapp.TaskQuery{Completed: &open})
	if err != nil {
		log.Printf("httpapi: assistant task context unavailable actor=%s err=%v", actor.ID, err)
	}
	for _, task := range tasks {
		openTasks = append(openTasks, task.Title)
	}

	reply, err := h.Assistant.Reply(r.Context(), req.Prompt, openTasks)
	if err != nil {
		writeError(w, r, "assistant chat", err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply.Text, Fallback: reply.Fallback})
}
