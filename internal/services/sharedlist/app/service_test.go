package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/realtime"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/storage/sqlite"
)

var (
	alice = identity.Identity{ID: "acc-a", Kind: identity.KindAccount, Email: "a@x.com"}
	bob   = identity.Identity{ID: "acc-b", Kind: identity.KindAccount, Email: "b@x.com"}
	carol = identity.Identity{ID: "acc-c", Kind: identity.KindAccount, Email: "C@X.com"}
	guest = identity.Identity{ID: "guest_0123456789abcdef", Kind: identity.KindGuest}
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sharedlists.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	broker, err := realtime.NewBroker(store)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	t.Cleanup(func() {
		broker.Close()
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	now := time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)
	svc, err := NewService(store, broker, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func createGroceries(t *testing.T, svc *Service) sharedlist.List {
	t.Helper()
	list, err := svc.CreateList(context.Background(), alice, "Groceries")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	return list
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("error code = %q, want %q (err=%v)", got, want, err)
	}
}

func TestCreateListIsPrivateAndDeniesOthers(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	if list.AccessType != sharedlist.AccessPrivate {
		t.Fatalf("access type = %q, want %q", list.AccessType, sharedlist.AccessPrivate)
	}
	if !list.HasCollaborator("a@x.com") {
		t.Fatalf("collaborators = %v, want creator", list.Collaborators)
	}

	view, err := svc.Open(ctx, bob, list.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if view.Decision.Level != access.LevelNoAccess || view.List != nil {
		t.Fatalf("bob view = %+v, want no-access without list", view)
	}
	if _, err := svc.GetList(ctx, bob, list.ID); err == nil {
		t.Fatal("expected access error")
	} else {
		assertCode(t, err, apperrors.CodeListAccessDenied)
	}
}

func TestCreateListValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor identity.Identity
		list  string
		code  apperrors.Code
	}{
		{name: "guest", actor: guest, list: "Groceries", code: apperrors.CodeGuestNotAllowed},
		{name: "anonymous", actor: identity.Identity{}, list: "Groceries", code: apperrors.CodeAuthSessionInvalid},
		{name: "empty name", actor: alice, list: "  ", code: apperrors.CodeListNameEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateList(ctx, tc.actor, tc.list)
			assertCode(t, err, tc.code)
		})
	}
}

func TestPublicListGrantsReadWrite(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	if err := svc.SetAccessType(ctx, alice, list.ID, sharedlist.AccessPublic); err != nil {
		t.Fatalf("set access type: %v", err)
	}
	view, err := svc.Open(ctx, bob, list.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if view.Decision.Level != access.LevelPublicReadWrite || !view.Decision.CanModify {
		t.Fatalf("decision = %+v, want public-read-write with modify", view.Decision)
	}

	// Public access does not make bob a collaborator.
	err = svc.SetAccessType(ctx, bob, list.ID, sharedlist.AccessPrivate)
	assertCode(t, err, apperrors.CodeListNotCollaborator)

	err = svc.SetAccessType(ctx, alice, list.ID, sharedlist.AccessType("secret"))
	assertCode(t, err, apperrors.CodeListInvalidAccessType)
}

func TestAddAndToggleTask(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	taskID, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if taskID == "" {
		t.Fatal("expected generated task id")
	}
	view, err := svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	task, ok := view.List.Task(taskID)
	if !ok {
		t.Fatalf("task %s missing", taskID)
	}
	if task.Completed || task.Priority != sharedlist.PriorityMedium || task.CreatedBy != "a@x.com" {
		t.Fatalf("task = %+v", task)
	}

	for i, want := range []bool{true, false} {
		got, err := svc.ToggleTask(ctx, alice, list.ID, taskID)
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("toggle %d completed = %v, want %v", i, got, want)
		}
	}
	view, err = svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if task, _ := view.List.Task(taskID); task.Completed {
		t.Fatal("task should be back to not completed")
	}
}

func TestConcurrentAddTaskAllCommit(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	const writers = 50
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("add task: %v", err)
	}

	view, err := svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if got := len(view.List.Tasks); got != writers {
		t.Fatalf("tasks = %d, want %d", got, writers)
	}
}

func TestMutationsRequireModify(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	taskID, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	title := "Oat milk"
	checks := map[string]func() error{
		"add": func() error {
			_, err := svc.AddTask(ctx, bob, list.ID, TaskInput{Title: "Eggs"})
			return err
		},
		"update": func() error {
			return svc.UpdateTask(ctx, bob, list.ID, taskID, TaskUpdate{Title: &title})
		},
		"delete": func() error {
			return svc.DeleteTask(ctx, bob, list.ID, taskID)
		},
		"toggle": func() error {
			_, err := svc.ToggleTask(ctx, bob, list.ID, taskID)
			return err
		},
		"missing list": func() error {
			_, err := svc.AddTask(ctx, alice, "missing", TaskInput{Title: "Eggs"})
			return err
		},
	}
	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			assertCode(t, check(), apperrors.CodeListPermissionDenied)
		})
	}

	view, err := svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(view.List.Tasks) != 1 || view.List.Tasks[0].Title != "Milk" {
		t.Fatalf("tasks changed after denied mutations: %+v", view.List.Tasks)
	}
}

func TestTaskValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	tests := []struct {
		name  string
		input TaskInput
		code  apperrors.Code
	}{
		{name: "empty title", input: TaskInput{Title: " "}, code: apperrors.CodeTaskTitleEmpty},
		{name: "bad priority", input: TaskInput{Title: "Milk", Priority: "urgent"}, code: apperrors.CodeTaskInvalidPriority},
		{name: "bad due date", input: TaskInput{Title: "Milk", DueDate: "tomorrow"}, code: apperrors.CodeTaskInvalidDueDate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddTask(ctx, alice, list.ID, tc.input)
			assertCode(t, err, tc.code)
		})
	}

	err := svc.DeleteTask(ctx, alice, list.ID, "missing")
	assertCode(t, err, apperrors.CodeTaskNotFound)
}

func TestUpdateTaskMergesFields(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	if err := svc.SetAccessType(ctx, alice, list.ID, sharedlist.AccessPublic); err != nil {
		t.Fatalf("set access type: %v", err)
	}
	taskID, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk", Project: "home"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	high := sharedlist.PriorityHigh
	if err := svc.UpdateTask(ctx, bob, list.ID, taskID, TaskUpdate{Priority: &high}); err != nil {
		t.Fatalf("update task: %v", err)
	}
	view, err := svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	task, _ := view.List.Task(taskID)
	if task.Priority != sharedlist.PriorityHigh || task.Title != "Milk" || task.Project != "home" {
		t.Fatalf("task = %+v", task)
	}
	if task.UpdatedBy != "b@x.com" {
		t.Fatalf("updated_by = %q, want %q", task.UpdatedBy, "b@x.com")
	}
}

func TestInvitationPreviewAndAccept(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	for _, title := range []string{"Milk", "Eggs", "Bread", "Butter"} {
		if _, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: title}); err != nil {
			t.Fatalf("add %s: %v", title, err)
		}
	}
	if err := svc.Invite(ctx, alice, list.ID, "c@x.com"); err != nil {
		t.Fatalf("invite: %v", err)
	}

	view, err := svc.GetList(ctx, carol, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if view.Decision.Level != access.LevelPendingInvitation || view.Decision.CanModify {
		t.Fatalf("decision = %+v, want pending view-only", view.Decision)
	}
	if len(view.List.Tasks) != access.PreviewTaskLimit {
		t.Fatalf("preview tasks = %d, want %d", len(view.List.Tasks), access.PreviewTaskLimit)
	}
	tasks, _, err := svc.ListTasks(ctx, carol, list.ID, "")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != access.PreviewTaskLimit {
		t.Fatalf("listed preview tasks = %d, want %d", len(tasks), access.PreviewTaskLimit)
	}
	_, err = svc.AddTask(ctx, carol, list.ID, TaskInput{Title: "Jam"})
	assertCode(t, err, apperrors.CodeListPermissionDenied)

	for i := 0; i < 2; i++ {
		decision, err := svc.AcceptInvitation(ctx, carol, list.ID)
		if err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
		if decision.Level != access.LevelCollaborator || !decision.CanModify {
			t.Fatalf("accept %d decision = %+v", i, decision)
		}
	}
	view, err = svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	collaborators := 0
	for _, email := range view.List.Collaborators {
		if email == "c@x.com" {
			collaborators++
		}
	}
	if collaborators != 1 || view.List.HasPendingInvitation("c@x.com") {
		t.Fatalf("collaborators = %v pending = %v", view.List.Collaborators, view.List.PendingInvitations)
	}
}

func TestAcceptRequiresInvitation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	_, err := svc.AcceptInvitation(ctx, bob, list.ID)
	assertCode(t, err, apperrors.CodeInvitationNotFound)

	_, err = svc.AcceptInvitation(ctx, guest, list.ID)
	assertCode(t, err, apperrors.CodeGuestNotAllowed)
}

func TestRejectInvitation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	if err := svc.Invite(ctx, alice, list.ID, "b@x.com"); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := svc.RejectInvitation(ctx, bob, list.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	view, err := svc.Open(ctx, bob, list.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if view.Decision.Level != access.LevelNoAccess {
		t.Fatalf("level = %q, want %q", view.Decision.Level, access.LevelNoAccess)
	}
	assertCode(t, svc.RejectInvitation(ctx, bob, list.ID), apperrors.CodeInvitationNotFound)
}

func TestInviteRules(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	assertCode(t, svc.Invite(ctx, alice, list.ID, "not-an-email"), apperrors.CodeInvitationEmailInvalid)
	assertCode(t, svc.Invite(ctx, bob, list.ID, "c@x.com"), apperrors.CodeListNotCollaborator)

	if err := svc.Invite(ctx, alice, list.ID, "A@x.com"); err != nil {
		t.Fatalf("invite collaborator: %v", err)
	}
	view, err := svc.GetList(ctx, alice, list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(view.List.PendingInvitations) != 0 {
		t.Fatalf("pending = %v, want none for existing collaborator", view.List.PendingInvitations)
	}
}

func TestListTasksFilter(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	for _, input := range []TaskInput{
		{Title: "Milk", Priority: sharedlist.PriorityHigh},
		{Title: "Eggs", Priority: sharedlist.PriorityLow},
	} {
		if _, err := svc.AddTask(ctx, alice, list.ID, input); err != nil {
			t.Fatalf("add task: %v", err)
		}
	}

	tasks, decision, err := svc.ListTasks(ctx, alice, list.ID, `priority = "high"`)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if decision.Level != access.LevelCollaborator {
		t.Fatalf("level = %q", decision.Level)
	}
	if len(tasks) != 1 || tasks[0].Title != "Milk" {
		t.Fatalf("tasks = %+v", tasks)
	}

	_, _, err = svc.ListTasks(ctx, alice, list.ID, `priority = `)
	assertCode(t, err, apperrors.CodeFilterInvalid)
}
