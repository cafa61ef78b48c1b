// Package sharedlist defines the shared task list records kept in the
// realtime store.
package sharedlist

import (
	"slices"
	"strings"
	"time"
)

// AccessType controls whether non-collaborators holding the link may use a
// list.
type AccessType string

const (
	AccessPrivate AccessType = "private"
	AccessPublic  AccessType = "public"
)

// Valid reports whether a is a known access type.
func (a AccessType) Valid() bool {
	return a == AccessPrivate || a == AccessPublic
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is one task under a shared list.
type Task struct {
	ID          string
	Title       string
	Description string
	Completed   bool
	Priority    Priority
	DueDate     string
	Project     string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UpdatedBy   string
}

// List is a shared list snapshot. Tasks are in store insertion order.
type List struct {
	ID                 string
	Name               string
	CreatedBy          string
	Collaborators      []string
	PendingInvitations []string
	AccessType         AccessType
	Tasks              []Task
	CreatedAt          time.Time
	UpdatedAt          time.Time
	// Version increases with every committed change to the list or its tasks.
	Version int64
}

// HasCollaborator reports whether email is a collaborator.
func (l *List) HasCollaborator(email string) bool {
	return l != nil && containsEmail(l.Collaborators, email)
}

// HasPendingInvitation reports whether email has an unanswered invitation.
func (l *List) HasPendingInvitation(email string) bool {
	return l != nil && containsEmail(l.PendingInvitations, email)
}

// Task returns the task with id, if present.
func (l *List) Task(id string) (Task, bool) {
	if l == nil {
		return Task{}, false
	}
	idx := slices.IndexFunc(l.Tasks, func(t Task) bool { return t.ID == id })
	if idx < 0 {
		return Task{}, false
	}
	return l.Tasks[idx], true
}

// NormalizeEmail trims and lowercases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsEmail(set []string, email string) bool {
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}
	return slices.ContainsFunc(set, func(candidate string) bool {
		return NormalizeEmail(candidate) == email
	})
}
