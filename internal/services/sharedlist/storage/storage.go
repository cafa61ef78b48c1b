// Package storage defines the realtime store contract for shared lists.
//
// Records live under hierarchical paths: sharedLists/{listId} for the list and
// sharedLists/{listId}/tasks/{taskId} for each task. Every committed write is
// published to change subscribers with the list's new version.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/filter"
)

var (
	// ErrNotFound indicates a requested list or task is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a list id is already in use.
	ErrAlreadyExists = errors.New("record already exists")
)

// RootPath is the path prefix of every shared list.
const RootPath = "sharedLists"

// ListPath returns the path of one list record.
func ListPath(listID string) string {
	return RootPath + "/" + listID
}

// TasksPath returns the path of a list's task collection.
func TasksPath(listID string) string {
	return ListPath(listID) + "/tasks"
}

// TaskPath returns the path of one task.
func TaskPath(listID string, taskID string) string {
	return TasksPath(listID) + "/" + taskID
}

// ChangeKind names the write operation behind a change.
type ChangeKind string

const (
	ChangeSet    ChangeKind = "set"
	ChangeUpdate ChangeKind = "update"
	ChangePush   ChangeKind = "push"
	ChangeRemove ChangeKind = "remove"
)

// Change describes one committed write.
type Change struct {
	ListID  string
	Path    string
	Kind    ChangeKind
	Version int64
}

// ChangeFunc receives committed changes. It runs on the writer's goroutine
// and must not block.
type ChangeFunc func(Change)

// ListPatch is a partial merge into a list record. Nil or empty fields are
// left unchanged.
type ListPatch struct {
	Name              *string
	AccessType        *sharedlist.AccessType
	AddCollaborators  []string
	AddInvitations    []string
	RemoveInvitations []string
	UpdatedAt         time.Time
}

// TaskPatch is a partial merge into a task. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *sharedlist.Priority
	DueDate     *string
	Project     *string
	UpdatedAt   time.Time
	UpdatedBy   string
}

// Empty reports whether the patch changes no task field.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.Priority == nil && p.DueDate == nil && p.Project == nil
}

// Store is the realtime store for shared lists.
type Store interface {
	// SetList writes a new list record with its collaborators and pending
	// invitations. Tasks are ignored.
	SetList(ctx context.Context, list sharedlist.List) error
	// GetList reads one list with its tasks in insertion order.
	GetList(ctx context.Context, listID string) (sharedlist.List, error)
	// UpdateList merges patch into the list record.
	UpdateList(ctx context.Context, listID string, patch ListPatch) error
	// PushTask appends a task under a generated key and returns the key.
	PushTask(ctx context.Context, listID string, task sharedlist.Task) (string, error)
	// UpdateTask merges patch into one task.
	UpdateTask(ctx context.Context, listID string, taskID string, patch TaskPatch) error
	// ToggleTask flips the completed flag of one task and returns the new
	// value.
	ToggleTask(ctx context.Context, listID string, taskID string, updatedAt time.Time, updatedBy string) (bool, error)
	// RemoveTask deletes one task.
	RemoveTask(ctx context.Context, listID string, taskID string) error
	// QueryTasks returns the tasks of a list matching cond, in insertion order.
	QueryTasks(ctx context.Context, listID string, cond filter.SQLCondition) ([]sharedlist.Task, error)
	// Subscribe registers fn for every committed change until cancel is called.
	Subscribe(fn ChangeFunc) (cancel func())
}
