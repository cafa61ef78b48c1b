// Package storage defines the per-owner local persistence contract.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/taskflow/internal/services/personal"
)

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("record not found")

// TaskStore persists private tasks.
type TaskStore interface {
	PutTask(ctx context.Context, ownerID string, task personal.Task) error
	GetTask(ctx context.Context, ownerID string, taskID string) (personal.Task, error)
	// ListTasks returns tasks oldest first.
	ListTasks(ctx context.Context, ownerID string) ([]personal.Task, error)
	DeleteTask(ctx context.Context, ownerID string, taskID string) error
}

// TaskListStore persists task list tags.
type TaskListStore interface {
	PutTaskList(ctx context.Context, ownerID string, list personal.TaskList) error
	GetTaskList(ctx context.Context, ownerID string, listID string) (personal.TaskList, error)
	ListTaskLists(ctx context.Context, ownerID string) ([]personal.TaskList, error)
	// DeleteTaskList removes the list and clears it from every task that
	// referenced it.
	DeleteTaskList(ctx context.Context, ownerID string, listID string) error
}

// ReflectionStore persists one reflection per calendar day.
type ReflectionStore interface {
	// SaveReflection writes the reflection for its date. An existing record
	// for that date keeps its id and creation time.
	SaveReflection(ctx context.Context, ownerID string, reflection personal.Reflection) (personal.Reflection, error)
	GetReflection(ctx context.Context, ownerID string, date string) (personal.Reflection, error)
	// ListReflections returns reflections newest date first.
	ListReflections(ctx context.Context, ownerID string) ([]personal.Reflection, error)
}

// PlannerStore persists planner events.
type PlannerStore interface {
	PutPlannerEvent(ctx context.Context, ownerID string, event personal.PlannerEvent) error
	// ListPlannerEvents returns events ordered by date and start; an empty
	// date returns every event.
	ListPlannerEvents(ctx context.Context, ownerID string, date string) ([]personal.PlannerEvent, error)
	DeletePlannerEvent(ctx context.Context, ownerID string, eventID string) error
}

// PreferenceStore persists settings and focus state. Update functions run
// inside one write transaction.
type PreferenceStore interface {
	GetSettings(ctx context.Context, ownerID string) (personal.Settings, error)
	UpdateSettings(ctx context.Context, ownerID string, fn func(*personal.Settings) error) (personal.Settings, error)
	GetFocus(ctx context.Context, ownerID string) (personal.FocusState, error)
	UpdateFocus(ctx context.Context, ownerID string, fn func(*personal.FocusState) error) (personal.FocusState, error)
}

// Store is the full local persistence contract.
type Store interface {
	TaskStore
	TaskListStore
	ReflectionStore
	PlannerStore
	PreferenceStore
}
