// Package access decides what a requester may do with a shared list.
package access

import "github.com/louisbranch/taskflow/internal/services/sharedlist"

// PreviewTaskLimit is how many tasks an invited, not yet accepted, email may
// see.
const PreviewTaskLimit = 3

// Level is the access a requester has to one list.
type Level string

const (
	LevelNoAccess          Level = "no-access"
	LevelPendingInvitation Level = "pending-invitation"
	LevelPublicReadWrite   Level = "public-read-write"
	LevelCollaborator      Level = "collaborator-read-write"
)

// Decision is the result of evaluating access.
type Decision struct {
	Level     Level
	CanModify bool
	// PreviewLimit caps visible tasks; zero means no cap.
	PreviewLimit int
}

// CanView reports whether the requester may see any part of the list.
func (d Decision) CanView() bool {
	return d.Level != LevelNoAccess && d.Level != ""
}

// Evaluate returns the access email has to list. A nil list yields no access.
// Collaborator membership wins over a pending invitation, which wins over
// public access.
func Evaluate(list *sharedlist.List, email string) Decision {
	switch {
	case list == nil:
		return Decision{Level: LevelNoAccess}
	case list.HasCollaborator(email):
		return Decision{Level: LevelCollaborator, CanModify: true}
	case list.HasPendingInvitation(email):
		return Decision{Level: LevelPendingInvitation, PreviewLimit: PreviewTaskLimit}
	case list.AccessType == sharedlist.AccessPublic:
		return Decision{Level: LevelPublicReadWrite, CanModify: true}
	default:
		return Decision{Level: LevelNoAccess}
	}
}

// CanModify reports whether email may mutate tasks of list.
func CanModify(list *sharedlist.List, email string) bool {
	return Evaluate(list, email).CanModify
}

// Visible returns the view of list allowed by d: nil without access, the
// first PreviewLimit tasks for a preview, otherwise the list unchanged.
// The input is never modified.
func (d Decision) Visible(list *sharedlist.List) *sharedlist.List {
	if list == nil || !d.CanView() {
		return nil
	}
	view := *list
	if d.PreviewLimit > 0 && len(view.Tasks) > d.PreviewLimit {
		view.Tasks = append([]sharedlist.Task(nil), view.Tasks[:d.PreviewLimit]...)
	}
	return &view
}
