package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/realtime"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/storage"
)

// WatchState is the lifecycle state of a list watch.
type WatchState string

const (
	WatchUnsubscribed WatchState = "unsubscribed"
	WatchSubscribing  WatchState = "subscribing"
	WatchLive         WatchState = "live"
	WatchDenied       WatchState = "denied"
)

// Observer receives list views for one watch. Calls come from a single
// goroutine and never overlap.
type Observer interface {
	Snapshot(View)
	Denied(error)
}

// Watch is a typed handle for one live list subscription.
type Watch struct {
	listID string
	viewID string

	mu        sync.Mutex
	state     WatchState
	err       error
	sub       *realtime.Subscription
	stopAfter func() bool
	done      chan struct{}
	doneOnce  sync.Once
}

func newWatch(listID string, viewID string) *Watch {
	return &Watch{
		listID: listID,
		viewID: viewID,
		state:  WatchUnsubscribed,
		done:   make(chan struct{}),
	}
}

// ListID returns the watched list id.
func (w *Watch) ListID() string {
	return w.listID
}

// ViewID returns the watching view id.
func (w *Watch) ViewID() string {
	return w.viewID
}

// State returns the current lifecycle state.
func (w *Watch) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done is closed once the watch stops delivering: it was unsubscribed,
// denied, or replaced by a newer watch of the same viewer and view.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

func (w *Watch) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}

// Err returns the denial reason once the watch is denied.
func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Unsubscribe detaches the watch. The observer is not called after it
// returns. A denied watch stays denied.
func (w *Watch) Unsubscribe() {
	w.mu.Lock()
	sub := w.sub
	stopAfter := w.stopAfter
	w.sub = nil
	w.stopAfter = nil
	if w.state != WatchDenied {
		w.state = WatchUnsubscribed
	}
	w.mu.Unlock()

	if stopAfter != nil {
		stopAfter()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	w.finish()
}

// detached ends a watch whose subscription closed under it: the same viewer
// subscribed again with the same view id, or the broker shut down.
func (w *Watch) detached(sub *realtime.Subscription) {
	w.mu.Lock()
	if w.sub != sub {
		w.mu.Unlock()
		return
	}
	stopAfter := w.stopAfter
	w.sub = nil
	w.stopAfter = nil
	w.state = WatchUnsubscribed
	w.mu.Unlock()

	if stopAfter != nil {
		stopAfter()
	}
	w.finish()
}

func (w *Watch) deny(err error) {
	w.mu.Lock()
	w.state = WatchDenied
	w.err = err
	w.sub = nil
	w.mu.Unlock()
	w.finish()
}

// markLive moves a subscribing watch to live and reports whether it is still
// attached.
func (w *Watch) markLive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case WatchSubscribing:
		w.state = WatchLive
		return true
	case WatchLive:
		return true
	default:
		return false
	}
}

// Watch evaluates access to listID and, when permitted, attaches observer to
// its changes under viewID. Access is evaluated again on every change; losing
// it denies and detaches the watch. Cancelling ctx unsubscribes.
//
// View ids are scoped to the actor: a second watch by the same actor with
// the same view id replaces the first, while other actors never collide.
//
// The returned Watch is non-nil even when err is not nil so callers can
// inspect the denied state.
func (s *Service) Watch(ctx context.Context, actor identity.Identity, listID string, viewID string, observer Observer) (*Watch, error) {
	listID = strings.TrimSpace(listID)
	w := newWatch(listID, strings.TrimSpace(viewID))
	if observer == nil {
		err := errors.New("observer is required")
		w.deny(err)
		return w, err
	}
	email, err := requireMember(actor)
	if err != nil {
		w.deny(err)
		return w, err
	}
	if w.viewID == "" {
		err := errors.New("view id is required")
		w.deny(err)
		return w, err
	}

	list, err := s.loadList(ctx, listID)
	if err != nil {
		w.deny(err)
		return w, err
	}
	if !access.Evaluate(list, email).CanView() {
		err := accessDenied(listID)
		w.deny(err)
		return w, err
	}

	w.mu.Lock()
	w.state = WatchSubscribing
	w.mu.Unlock()

	handler := func(ev realtime.Event) bool {
		if ev.Err != nil {
			err := apperrors.Wrap(apperrors.CodeUnavailable, "reload shared list", ev.Err)
			log.Printf("sharedlist: watch %s reload err=%v", storage.ListPath(listID), ev.Err)
			w.deny(err)
			observer.Denied(err)
			return false
		}
		decision := access.Evaluate(&ev.List, email)
		if !decision.CanView() {
			err := accessDenied(listID)
			w.deny(err)
			observer.Denied(err)
			return false
		}
		if !w.markLive() {
			return false
		}
		observer.Snapshot(View{List: decision.Visible(&ev.List), Decision: decision})
		return true
	}

	sub, err := s.broker.Subscribe(ctx, listID, subscriptionKey(actor, w.viewID), handler)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = accessDenied(listID)
		} else {
			err = apperrors.Wrap(apperrors.CodeUnavailable, "subscribe to shared list", err)
		}
		w.deny(err)
		return w, err
	}

	w.mu.Lock()
	if w.state == WatchDenied {
		w.mu.Unlock()
		sub.Unsubscribe()
		return w, w.Err()
	}
	w.sub = sub
	w.stopAfter = context.AfterFunc(ctx, w.Unsubscribe)
	w.mu.Unlock()

	go func() {
		<-sub.Done()
		if sub.Replaced() {
			log.Printf("sharedlist: watch %s view=%s replaced", storage.ListPath(listID), w.viewID)
		}
		w.detached(sub)
	}()
	return w, nil
}

func subscriptionKey(actor identity.Identity, viewID string) string {
	return actor.ID + ":" + viewID
}
