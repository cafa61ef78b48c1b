package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/taskflow/internal/services/personal"
	"github.com/louisbranch/taskflow/internal/services/personal/focus"
	"github.com/louisbranch/taskflow/internal/services/personal/storage"
)

var created = time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestTasksAreScopedByOwner(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutTask(ctx, "owner-1", personal.Task{ID: "t1", Title: "Milk", CreatedAt: created}); err != nil {
		t.Fatalf("put task: %v", err)
	}

	got, err := store.GetTask(ctx, "owner-1", "t1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Title != "Milk" {
		t.Fatalf("title = %q, want %q", got.Title, "Milk")
	}
	if _, err := store.GetTask(ctx, "owner-2", "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("other owner error = %v, want %v", err, storage.ErrNotFound)
	}
	tasks, err := store.ListTasks(ctx, "owner-2")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("other owner tasks = %d, want 0", len(tasks))
	}
}

func TestListTasksOldestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for i, id := range []string{"zz", "aa", "mm"} {
		task := personal.Task{ID: id, Title: id, CreatedAt: created.Add(time.Duration(i) * time.Minute)}
		if err := store.PutTask(ctx, "owner-1", task); err != nil {
			t.Fatalf("put task: %v", err)
		}
	}
	tasks, err := store.ListTasks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 || tasks[0].ID != "zz" || tasks[1].ID != "aa" || tasks[2].ID != "mm" {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutTask(ctx, "owner-1", personal.Task{ID: "t1"}); err != nil {
		t.Fatalf("put task: %v", err)
	}
	if err := store.DeleteTask(ctx, "owner-1", "t1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := store.DeleteTask(ctx, "owner-1", "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestDeleteTaskListClearsTasks(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutTaskList(ctx, "owner-1", personal.TaskList{ID: "home", Name: "Home"}); err != nil {
		t.Fatalf("put task list: %v", err)
	}
	for _, task := range []personal.Task{
		{ID: "t1", ListID: "home"},
		{ID: "t2", ListID: "work"},
	} {
		if err := store.PutTask(ctx, "owner-1", task); err != nil {
			t.Fatalf("put task: %v", err)
		}
	}

	if err := store.DeleteTaskList(ctx, "owner-1", "home"); err != nil {
		t.Fatalf("delete task list: %v", err)
	}
	t1, err := store.GetTask(ctx, "owner-1", "t1")
	if err != nil {
		t.Fatalf("get t1: %v", err)
	}
	if t1.ListID != "" {
		t.Fatalf("t1 list id = %q, want empty", t1.ListID)
	}
	t2, err := store.GetTask(ctx, "owner-1", "t2")
	if err != nil {
		t.Fatalf("get t2: %v", err)
	}
	if t2.ListID != "work" {
		t.Fatalf("t2 list id = %q, want %q", t2.ListID, "work")
	}
	if _, err := store.GetTaskList(ctx, "owner-1", "home"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted list error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.DeleteTaskList(ctx, "owner-1", "home"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestSaveReflectionKeepsOneRecordPerDay(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	first, err := store.SaveReflection(ctx, "owner-1", personal.Reflection{ID: "r1", Date: "2026-03-03", Insights: "first", CreatedAt: created})
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	second, err := store.SaveReflection(ctx, "owner-1", personal.Reflection{ID: "r2", Date: "2026-03-03", Insights: "second", CreatedAt: created.Add(time.Hour)})
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(created) {
		t.Fatalf("second = %+v, want id %q and original creation time", second, first.ID)
	}
	if _, err := store.SaveReflection(ctx, "owner-1", personal.Reflection{ID: "r3", Date: "2026-03-01"}); err != nil {
		t.Fatalf("save older: %v", err)
	}

	reflections, err := store.ListReflections(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list reflections: %v", err)
	}
	if len(reflections) != 2 {
		t.Fatalf("reflections = %d, want 2", len(reflections))
	}
	if reflections[0].Date != "2026-03-03" || reflections[0].Insights != "second" {
		t.Fatalf("newest = %+v", reflections[0])
	}
	if reflections[1].Date != "2026-03-01" {
		t.Fatalf("oldest = %+v", reflections[1])
	}
}

func TestPlannerEventsFilteredByDate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for _, event := range []personal.PlannerEvent{
		{ID: "e1", Date: "2026-03-03", Start: "14:00", End: "15:00", Title: "Review"},
		{ID: "e2", Date: "2026-03-03", Start: "09:00", End: "10:00", Title: "Standup"},
		{ID: "e3", Date: "2026-03-04", Start: "08:00", End: "09:00", Title: "Gym"},
	} {
		if err := store.PutPlannerEvent(ctx, "owner-1", event); err != nil {
			t.Fatalf("put event: %v", err)
		}
	}
	events, err := store.ListPlannerEvents(ctx, "owner-1", "2026-03-03")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "e2" || events[1].ID != "e1" {
		t.Fatalf("events = %+v", events)
	}
	all, err := store.ListPlannerEvents(ctx, "owner-1", "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all events = %d, want 3", len(all))
	}
	if err := store.DeletePlannerEvent(ctx, "owner-1", "e3"); err != nil {
		t.Fatalf("delete event: %v", err)
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	settings, err := store.GetSettings(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.Theme != personal.ThemeLight || settings.Focus != focus.DefaultConfig() {
		t.Fatalf("defaults = %+v", settings)
	}

	updated, err := store.UpdateSettings(ctx, "owner-1", func(s *personal.Settings) error {
		s.Theme = personal.ThemeDark
		s.Onboarding["welcome"] = true
		return nil
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.Theme != personal.ThemeDark || !updated.Onboarding["welcome"] {
		t.Fatalf("updated = %+v", updated)
	}

	boom := errors.New("boom")
	if _, err := store.UpdateSettings(ctx, "owner-1", func(s *personal.Settings) error {
		s.Theme = personal.ThemeLight
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	settings, err = store.GetSettings(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.Theme != personal.ThemeDark {
		t.Fatalf("theme = %q, want rollback to %q", settings.Theme, personal.ThemeDark)
	}
}

func TestFocusUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	state, err := store.GetFocus(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get focus: %v", err)
	}
	if state.Timer.Status != focus.StatusIdle || state.TotalSeconds != 0 {
		t.Fatalf("initial focus = %+v", state)
	}

	if _, err := store.UpdateFocus(ctx, "owner-1", func(s *personal.FocusState) error {
		s.Credit(25*time.Minute, created)
		return s.Timer.Start(created)
	}); err != nil {
		t.Fatalf("update focus: %v", err)
	}
	state, err = store.GetFocus(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get focus: %v", err)
	}
	if state.TotalSeconds != 1500 || state.DailySeconds["2026-03-03"] != 1500 {
		t.Fatalf("focus totals = %+v", state)
	}
	if state.Timer.Status != focus.StatusRunning || !state.Timer.EndsAt.Equal(created.Add(25*time.Minute)) {
		t.Fatalf("timer = %+v", state.Timer)
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.PutTask(ctx, "owner-1", personal.Task{ID: "t1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v", err, context.Canceled)
	}
}

func TestNilStoreReturnsError(t *testing.T) {
	t.Parallel()

	var store *Store
	if _, err := store.ListTasks(context.Background(), "owner-1"); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "personal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
