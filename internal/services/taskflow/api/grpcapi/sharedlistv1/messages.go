// Package sharedlistv1 defines the taskflow.sharedlist.v1 wire contract.
//
// Messages travel as google.protobuf.Struct values. The typed request and
// response structs below are the JSON shape of those structs.
package sharedlistv1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrEmptyMessage reports a missing wire message.
var ErrEmptyMessage = errors.New("message is required")

// Access is an access decision.
type Access struct {
	Level        string `json:"level"`
	CanModify    bool   `json:"can_modify"`
	PreviewLimit int    `json:"preview_limit,omitempty"`
}

// Task is one shared-list task.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	Priority    string    `json:"priority"`
	DueDate     string    `json:"due_date,omitempty"`
	Project     string    `json:"project,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// List is a shared-list snapshot as visible to the caller.
type List struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	CreatedBy          string    `json:"created_by"`
	AccessType         string    `json:"access_type"`
	Collaborators      []string  `json:"collaborators"`
	PendingInvitations []string  `json:"pending_invitations,omitempty"`
	Tasks              []Task    `json:"tasks"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"created_at,omitzero"`
	UpdatedAt          time.Time `json:"updated_at,omitzero"`
}

type EvaluateAccessRequest struct {
	ListID string `json:"list_id"`
}

// EvaluateAccessResponse carries the decision and, when permitted, the
// snapshot or preview.
type EvaluateAccessResponse struct {
	Access Access `json:"access"`
	List   *List  `json:"list,omitempty"`
}

type ListTasksRequest struct {
	ListID string `json:"list_id"`
	// Filter is an AIP-160 expression over title, completed, priority,
	// project, due_date and created_by.
	Filter string `json:"filter,omitempty"`
}

type ListTasksResponse struct {
	Access Access `json:"access"`
	Tasks  []Task `json:"tasks"`
}

type AddTaskRequest struct {
	ListID      string `json:"list_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Project     string `json:"project,omitempty"`
}

type AddTaskResponse struct {
	TaskID string `json:"task_id"`
}

type ToggleTaskRequest struct {
	ListID string `json:"list_id"`
	TaskID string `json:"task_id"`
}

type ToggleTaskResponse struct {
	Completed bool `json:"completed"`
}

// WatchListRequest opens a snapshot stream. An empty ViewID gets a
// server-generated one.
type WatchListRequest struct {
	ListID string `json:"list_id"`
	ViewID string `json:"view_id,omitempty"`
}

// WatchListEvent is one streamed snapshot.
type WatchListEvent struct {
	Access Access `json:"access"`
	List   *List  `json:"list"`
}

// Encode converts a message struct into its wire form.
func Encode(message any) (*structpb.Struct, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal message fields: %w", err)
	}
	return structpb.NewStruct(fields)
}

// Decode fills message from its wire form.
func Decode(in *structpb.Struct, message any) error {
	if in == nil {
		return ErrEmptyMessage
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, message); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// AccessFromDomain converts an access decision.
func AccessFromDomain(d access.Decision) Access {
	return Access{
		Level:        string(d.Level),
		CanModify:    d.CanModify,
		PreviewLimit: d.PreviewLimit,
	}
}

// TaskFromDomain converts one task.
func TaskFromDomain(t sharedlist.Task) Task {
	return Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		Project:     t.Project,
		CreatedBy:   t.CreatedBy,
		UpdatedBy:   t.UpdatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TasksFromDomain converts tasks, keeping order.
func TasksFromDomain(tasks []sharedlist.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, TaskFromDomain(task))
	}
	return out
}

// ListFromDomain converts a visible list. Nil stays nil.
func ListFromDomain(list *sharedlist.List) *List {
	if list == nil {
		return nil
	}
	return &List{
		ID:                 list.ID,
		Name:               list.Name,
		CreatedBy:          list.CreatedBy,
		AccessType:         string(list.AccessType),
		Collaborators:      append([]string{}, list.Collaborators...),
		PendingInvitations: append([]string(nil), list.PendingInvitations...),
		Tasks:              TasksFromDomain(list.Tasks),
		Version:            list.Version,
		CreatedAt:          list.CreatedAt,
		UpdatedAt:          list.UpdatedAt,
	}
}
