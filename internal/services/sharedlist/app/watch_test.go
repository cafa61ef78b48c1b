package app

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
)

type recordingObserver struct {
	snapshots chan View
	denied    chan error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{snapshots: make(chan View, 16), denied: make(chan error, 4)}
}

func (o *recordingObserver) Snapshot(view View) { o.snapshots <- view }
func (o *recordingObserver) Denied(err error)   { o.denied <- err }

func (o *recordingObserver) nextSnapshot(t *testing.T) View {
	t.Helper()
	select {
	case view := <-o.snapshots:
		return view
	case err := <-o.denied:
		t.Fatalf("unexpected denial: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return View{}
}

func (o *recordingObserver) nextDenied(t *testing.T) error {
	t.Helper()
	for {
		select {
		case <-o.snapshots:
		case err := <-o.denied:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for denial")
			return nil
		}
	}
}

func waitState(t *testing.T, w *Watch, want WatchState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", w.State(), want)
}

func TestWatchDeliversSnapshotsInOrder(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	obs := newRecordingObserver()
	w, err := svc.Watch(ctx, alice, list.ID, "tab-1", obs)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Unsubscribe()

	if view := obs.nextSnapshot(t); len(view.List.Tasks) != 0 {
		t.Fatalf("initial tasks = %d, want 0", len(view.List.Tasks))
	}
	waitState(t, w, WatchLive)

	for _, title := range []string{"Milk", "Eggs"} {
		if _, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: title}); err != nil {
			t.Fatalf("add %s: %v", title, err)
		}
	}
	var last View
	for last.List == nil || len(last.List.Tasks) < 2 {
		last = obs.nextSnapshot(t)
		if last.List == nil {
			t.Fatal("snapshot without list")
		}
	}
	if last.List.Tasks[0].Title != "Milk" || last.List.Tasks[1].Title != "Eggs" {
		t.Fatalf("tasks out of order: %+v", last.List.Tasks)
	}
}

func TestWatchDeniedWithoutAccess(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	list := createGroceries(t, svc)

	w, err := svc.Watch(context.Background(), bob, list.ID, "tab-1", newRecordingObserver())
	if err == nil {
		t.Fatal("expected access error")
	}
	assertCode(t, err, apperrors.CodeListAccessDenied)
	if w.State() != WatchDenied {
		t.Fatalf("state = %q, want %q", w.State(), WatchDenied)
	}
	if w.Err() == nil {
		t.Fatal("expected denial reason")
	}
}

func TestWatchDeniesOnAccessLoss(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	if err := svc.SetAccessType(ctx, alice, list.ID, sharedlist.AccessPublic); err != nil {
		t.Fatalf("set public: %v", err)
	}

	obs := newRecordingObserver()
	w, err := svc.Watch(ctx, bob, list.ID, "tab-1", obs)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Unsubscribe()
	if view := obs.nextSnapshot(t); view.Decision.Level != access.LevelPublicReadWrite {
		t.Fatalf("level = %q", view.Decision.Level)
	}

	if err := svc.SetAccessType(ctx, alice, list.ID, sharedlist.AccessPrivate); err != nil {
		t.Fatalf("set private: %v", err)
	}
	assertCode(t, obs.nextDenied(t), apperrors.CodeListAccessDenied)
	waitState(t, w, WatchDenied)
}

func TestWatchPreviewForInvitee(t *testing.T) {
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

	obs := newRecordingObserver()
	w, err := svc.Watch(ctx, carol, list.ID, "tab-1", obs)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Unsubscribe()
	view := obs.nextSnapshot(t)
	if len(view.List.Tasks) != access.PreviewTaskLimit {
		t.Fatalf("preview tasks = %d, want %d", len(view.List.Tasks), access.PreviewTaskLimit)
	}
}

func TestWatchUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	obs := newRecordingObserver()
	w, err := svc.Watch(ctx, alice, list.ID, "tab-1", obs)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	obs.nextSnapshot(t)
	w.Unsubscribe()
	if w.State() != WatchUnsubscribed {
		t.Fatalf("state = %q, want %q", w.State(), WatchUnsubscribed)
	}
	select {
	case <-w.Done():
	default:
		t.Fatal("done not closed after unsubscribe")
	}

	if _, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk"}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	select {
	case view := <-obs.snapshots:
		t.Fatalf("snapshot after unsubscribe: %+v", view)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	list := createGroceries(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	obs := newRecordingObserver()
	w, err := svc.Watch(ctx, alice, list.ID, "tab-1", obs)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	obs.nextSnapshot(t)
	cancel()
	waitState(t, w, WatchUnsubscribed)
}

func TestWatchViewIDsAreScopedToActor(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)
	if err := svc.SetAccessType(ctx, alice, list.ID, sharedlist.AccessPublic); err != nil {
		t.Fatalf("set public: %v", err)
	}

	aliceObs := newRecordingObserver()
	aliceWatch, err := svc.Watch(ctx, alice, list.ID, "main", aliceObs)
	if err != nil {
		t.Fatalf("alice watch: %v", err)
	}
	defer aliceWatch.Unsubscribe()
	aliceObs.nextSnapshot(t)

	bobObs := newRecordingObserver()
	bobWatch, err := svc.Watch(ctx, bob, list.ID, "main", bobObs)
	if err != nil {
		t.Fatalf("bob watch: %v", err)
	}
	defer bobWatch.Unsubscribe()
	bobObs.nextSnapshot(t)

	if _, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk"}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	for name, obs := range map[string]*recordingObserver{"alice": aliceObs, "bob": bobObs} {
		if view := obs.nextSnapshot(t); view.List == nil || len(view.List.Tasks) != 1 {
			t.Fatalf("%s snapshot = %+v", name, view)
		}
	}
	if aliceWatch.State() != WatchLive || bobWatch.State() != WatchLive {
		t.Fatalf("states = %q/%q, want live", aliceWatch.State(), bobWatch.State())
	}
}

func TestWatchReplacedBySameActorEnds(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	list := createGroceries(t, svc)

	firstObs := newRecordingObserver()
	first, err := svc.Watch(ctx, alice, list.ID, "main", firstObs)
	if err != nil {
		t.Fatalf("first watch: %v", err)
	}
	firstObs.nextSnapshot(t)

	secondObs := newRecordingObserver()
	second, err := svc.Watch(ctx, alice, list.ID, "main", secondObs)
	if err != nil {
		t.Fatalf("second watch: %v", err)
	}
	defer second.Unsubscribe()
	secondObs.nextSnapshot(t)

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replaced watch never finished")
	}
	if first.State() != WatchUnsubscribed || first.Err() != nil {
		t.Fatalf("replaced watch state = %q err = %v", first.State(), first.Err())
	}

	if _, err := svc.AddTask(ctx, alice, list.ID, TaskInput{Title: "Milk"}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	secondObs.nextSnapshot(t)
	select {
	case view := <-firstObs.snapshots:
		t.Fatalf("snapshot after replacement: %+v", view)
	case <-time.After(100 * time.Millisecond):
	}
}
