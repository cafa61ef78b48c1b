// Package realtime fans committed shared-list changes out to live
// subscribers as whole-list snapshots.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/taskflow/internal/platform/timeouts"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/storage"
)

// ErrClosed is returned when subscribing to a closed broker.
var ErrClosed = errors.New("broker is closed")

// Source is the store a broker reads snapshots from and listens to.
type Source interface {
	GetList(ctx context.Context, listID string) (sharedlist.List, error)
	Subscribe(fn storage.ChangeFunc) (cancel func())
}

// Event is one delivery to a subscriber: either a snapshot or a reload error.
type Event struct {
	List sharedlist.List
	Err  error
}

// Handler receives events on the subscription's own goroutine. Returning
// false detaches the subscription after the call.
type Handler func(Event) bool

// Broker keeps at most one subscription per (list id, view id).
type Broker struct {
	source      Source
	cancelFeed  func()
	loadTimeout time.Duration

	mu     sync.Mutex
	subs   map[string]map[string]*Subscription
	closed bool
}

// NewBroker attaches a broker to the change feed of source.
func NewBroker(source Source) (*Broker, error) {
	if source == nil {
		return nil, errors.New("broker source is required")
	}
	b := &Broker{
		source:      source,
		loadTimeout: timeouts.StoreCall,
		subs:        make(map[string]map[string]*Subscription),
	}
	b.cancelFeed = source.Subscribe(b.handleChange)
	return b, nil
}

// Subscribe attaches handler to listID for viewID and delivers the current
// snapshot first. An existing subscription for the same key is closed and
// replaced.
func (b *Broker) Subscribe(ctx context.Context, listID string, viewID string, handler Handler) (*Subscription, error) {
	listID = strings.TrimSpace(listID)
	viewID = strings.TrimSpace(viewID)
	if listID == "" || viewID == "" {
		return nil, errors.New("list id and view id are required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	sub := &Subscription{
		broker:  b,
		listID:  listID,
		viewID:  viewID,
		handler: handler,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	views, ok := b.subs[listID]
	if !ok {
		views = make(map[string]*Subscription)
		b.subs[listID] = views
	}
	previous := views[viewID]
	views[viewID] = sub
	b.mu.Unlock()

	if previous != nil {
		previous.replaced.Store(true)
		previous.Unsubscribe()
	}

	// Attach before the initial read so no commit between the two is lost.
	list, err := b.source.GetList(ctx, listID)
	if err != nil {
		sub.stop()
		return nil, fmt.Errorf("load list %s: %w", storage.ListPath(listID), err)
	}
	go sub.run()
	sub.offer(Event{List: list})
	return sub, nil
}

// Subscribers returns how many subscriptions are attached to listID.
func (b *Broker) Subscribers(listID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[listID])
}

// Close detaches every subscription and stops listening to the store.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, views := range b.subs {
		for _, sub := range views {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[string]*Subscription)
	b.mu.Unlock()

	if b.cancelFeed != nil {
		b.cancelFeed()
	}
	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (b *Broker) handleChange(change storage.Change) {
	b.mu.Lock()
	views := b.subs[change.ListID]
	targets := make([]*Subscription, 0, len(views))
	for _, sub := range views {
		targets = append(targets, sub)
	}
	b.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.loadTimeout)
	defer cancel()
	list, err := b.source.GetList(ctx, change.ListID)
	event := Event{List: list}
	if err != nil {
		log.Printf("realtime: reload %s after %s err=%v", change.Path, change.Kind, err)
		event = Event{Err: err}
	}
	for _, sub := range targets {
		sub.offer(event)
	}
}

func (b *Broker) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	views := b.subs[sub.listID]
	if views[sub.viewID] != sub {
		return
	}
	delete(views, sub.viewID)
	if len(views) == 0 {
		delete(b.subs, sub.listID)
	}
}

// Subscription is a live attachment to one list. Its mailbox holds at most
// one pending event; a newer snapshot replaces an undelivered older one.
type Subscription struct {
	broker  *Broker
	listID  string
	viewID  string
	handler Handler

	mu          sync.Mutex
	pending     *Event
	lastOffered int64

	signal   chan struct{}
	done     chan struct{}
	once     sync.Once
	replaced atomic.Bool

	deliverMu sync.Mutex
	closed    bool
}

// ListID returns the subscribed list id.
func (s *Subscription) ListID() string {
	return s.listID
}

// ViewID returns the subscribing view id.
func (s *Subscription) ViewID() string {
	return s.viewID
}

// Done is closed once the subscription is detached.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Replaced reports whether a newer subscription for the same key closed
// this one.
func (s *Subscription) Replaced() bool {
	return s.replaced.Load()
}

// Unsubscribe detaches the subscription. No handler call starts after it
// returns. It must not be called from the subscription's own handler; return
// false from the handler instead.
func (s *Subscription) Unsubscribe() {
	s.stop()
	s.deliverMu.Lock()
	s.closed = true
	s.deliverMu.Unlock()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		s.broker.detach(s)
		close(s.done)
	})
}

// offer queues ev unless a snapshot at least as new was already queued.
func (s *Subscription) offer(ev Event) {
	s.mu.Lock()
	if ev.Err == nil {
		if ev.List.Version <= s.lastOffered {
			s.mu.Unlock()
			return
		}
		s.lastOffered = ev.List.Version
	}
	s.pending = &ev
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		s.mu.Lock()
		ev := s.pending
		s.pending = nil
		s.mu.Unlock()
		if ev == nil {
			continue
		}

		s.deliverMu.Lock()
		keep := true
		if !s.closed {
			keep = s.handler(*ev)
		}
		if !keep {
			s.closed = true
		}
		s.deliverMu.Unlock()
		if !keep {
			s.stop()
			return
		}
	}
}
