package identity

import (
	"sync"
	"time"
)

// SessionEventKind names a session state transition.
type SessionEventKind string

const (
	// SessionSignedIn reports an active session.
	SessionSignedIn SessionEventKind = "signed_in"
	// SessionSignedOut reports a revoked or expired session.
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent is delivered to session watchers.
type SessionEvent struct {
	Kind      SessionEventKind
	SessionID string
	Identity  Identity
	At        time.Time
}

type sessionWatcher struct {
	ch chan SessionEvent
}

// sessionHub fans session transitions out to watchers keyed by session id.
type sessionHub struct {
	mu       sync.Mutex
	watchers map[string]map[*sessionWatcher]struct{}
}

func newSessionHub() *sessionHub {
	return &sessionHub{watchers: make(map[string]map[*sessionWatcher]struct{})}
}

func (h *sessionHub) add(sessionID string, w *sessionWatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[sessionID]
	if !ok {
		set = make(map[*sessionWatcher]struct{})
		h.watchers[sessionID] = set
	}
	set[w] = struct{}{}
}

// remove detaches w and closes its channel. It is safe to call more than once.
func (h *sessionHub) remove(sessionID string, w *sessionWatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[sessionID]
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, sessionID)
	}
	close(w.ch)
}

// signOut delivers a final event to every watcher of sessionID and closes them.
func (h *sessionHub) signOut(event SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[event.SessionID]
	delete(h.watchers, event.SessionID)
	for w := range set {
		select {
		case w.ch <- event:
		default:
		}
		close(w.ch)
	}
}
