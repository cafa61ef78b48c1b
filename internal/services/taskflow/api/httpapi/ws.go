package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/errors/i18n"
	"github.com/louisbranch/taskflow/internal/platform/id"
	"github.com/louisbranch/taskflow/internal/services/identity"
	listapp "github.com/louisbranch/taskflow/internal/services/sharedlist/app"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
	accessTokenQueryParam  = "access_token"
)

// Frame types.
const (
	frameListSubscribe    = "list.subscribe"
	frameListUnsubscribe  = "list.unsubscribe"
	frameListSnapshot     = "list.snapshot"
	frameListDenied       = "list.denied"
	frameListError        = "list.error"
	frameListUnsubscribed = "list.unsubscribed"
	frameSessionEnded     = "session.ended"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type listPayload struct {
	ListID string `json:"list_id"`
}

type snapshotPayload struct {
	ListID string              `json:"list_id"`
	Access sharedlistv1.Access `json:"access"`
	List   *sharedlistv1.List  `json:"list,omitempty"`
}

type errorPayload struct {
	ListID string    `json:"list_id,omitempty"`
	Error  errorBody `json:"error"`
}

// wsHandler authenticates the upgrade request before handing the connection
// to the frame loop. Browsers cannot set headers on WebSocket requests, so
// the token may also come from the access_token query parameter.
func (h *handler) wsHandler() http.Handler {
	ws := websocket.Handler(func(conn *websocket.Conn) {
		h.handleWSConn(conn)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam))
		}
		actor, err := h.authenticate(r, token)
		if err != nil {
			writeError(w, r, "websocket authenticate", err)
			return
		}
		ws.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), actor)))
	})
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsSession is one connection's set of list watches keyed by list id. It is
// only touched by the frame loop.
type wsSession struct {
	connID  string
	actor   identity.Identity
	peer    *wsPeer
	catalog *i18n.Catalog
	watches map[string]*listapp.Watch
}

func (s *wsSession) viewID(listID string) string {
	return s.connID + ":" + listID
}

func (s *wsSession) writeError(frameType string, requestID string, listID string, err error) {
	code := apperrors.CodeOf(err)
	_ = s.peer.writeFrame(wsFrame{
		Type:      frameType,
		RequestID: requestID,
		Payload: mustJSON(errorPayload{
			ListID: listID,
			Error: errorBody{
				Code:    string(code),
				Message: s.catalog.Format(string(code), apperrors.MetadataOf(err)),
			},
		}),
	})
}

func (s *wsSession) unsubscribeAll() {
	for listID, watch := range s.watches {
		watch.Unsubscribe()
		delete(s.watches, listID)
	}
}

// wsObserver forwards one watch's views to the connection.
type wsObserver struct {
	session *wsSession
	listID  string
}

func (o wsObserver) Snapshot(view listapp.View) {
	_ = o.session.peer.writeFrame(wsFrame{
		Type: frameListSnapshot,
		Payload: mustJSON(snapshotPayload{
			ListID: o.listID,
			Access: sharedlistv1.AccessFromDomain(view.Decision),
			List:   sharedlistv1.ListFromDomain(view.List),
		}),
	})
}

func (o wsObserver) Denied(err error) {
	o.session.writeError(frameListDenied, "", o.listID, err)
}

func (h *handler) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	actor, _ := identity.FromContext(request.Context())
	connID, err := id.NewID()
	if err != nil {
		log.Printf("httpapi: websocket connection id err=%v", err)
		return
	}
	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	session := &wsSession{
		connID:  connID,
		actor:   actor,
		peer:    newWSPeer(json.NewEncoder(conn)),
		catalog: i18n.ForAcceptLanguage(request.Header.Get("Accept-Language")),
		watches: make(map[string]*listapp.Watch),
	}
	defer session.unsubscribeAll()

	if err := h.watchSession(ctx, session, conn); err != nil {
		session.writeError(frameSessionEnded, "", "", err)
		return
	}

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
				return
			}
			decodeErrors++
			session.writeError(frameListError, "", "", apperrors.Wrap(apperrors.CodeInvalidRequest, "decode frame", err))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			session.writeError(frameListError, frame.RequestID, "", apperrors.New(apperrors.CodeInvalidRequest, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			log.Printf("httpapi: websocket rate limit exceeded actor=%s", actor.ID)
			return
		}

		switch frame.Type {
		case frameListSubscribe:
			h.handleSubscribeFrame(ctx, session, frame)
		case frameListUnsubscribe:
			handleUnsubscribeFrame(session, frame)
		default:
			session.writeError(frameListError, frame.RequestID, "", apperrors.WithMetadata(apperrors.CodeInvalidRequest, "unsupported frame type", map[string]string{"Type": frame.Type}))
		}
	}
}

// watchSession closes conn when the caller's session signs out. Identities
// without a session id are not watched.
func (h *handler) watchSession(ctx context.Context, session *wsSession, conn *websocket.Conn) error {
	sessionID := strings.TrimSpace(session.actor.SessionID)
	if sessionID == "" {
		return nil
	}
	events, err := h.Identity.Watch(ctx, sessionID)
	if err != nil {
		return err
	}
	go func() {
		for event := range events {
			if event.Kind != identity.SessionSignedOut {
				continue
			}
			session.writeError(frameSessionEnded, "", "", apperrors.New(apperrors.CodeAuthSessionInvalid, "session signed out"))
			_ = conn.Close()
			return
		}
	}()
	return nil
}

func (h *handler) handleSubscribeFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload listPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		session.writeError(frameListError, frame.RequestID, "", apperrors.Wrap(apperrors.CodeInvalidRequest, "decode subscribe payload", err))
		return
	}
	listID := strings.TrimSpace(payload.ListID)
	if listID == "" {
		session.writeError(frameListError, frame.RequestID, "", apperrors.New(apperrors.CodeInvalidRequest, "list_id is required"))
		return
	}

	if previous, ok := session.watches[listID]; ok {
		previous.Unsubscribe()
		delete(session.watches, listID)
	}
	watch, err := h.SharedLists.Watch(ctx, session.actor, listID, session.viewID(listID), wsObserver{session: session, listID: listID})
	if err != nil {
		frameType := frameListError
		switch apperrors.CodeOf(err) {
		case apperrors.CodeListAccessDenied, apperrors.CodeGuestNotAllowed, apperrors.CodeAuthSessionInvalid:
			frameType = frameListDenied
		default:
			log.Printf("httpapi: websocket subscribe failed list=%s actor=%s err=%v", listID, session.actor.ID, err)
		}
		session.writeError(frameType, frame.RequestID, listID, err)
		return
	}
	session.watches[listID] = watch
}

func handleUnsubscribeFrame(session *wsSession, frame wsFrame) {
	var payload listPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		session.writeError(frameListError, frame.RequestID, "", apperrors.Wrap(apperrors.CodeInvalidRequest, "decode unsubscribe payload", err))
		return
	}
	listID := strings.TrimSpace(payload.ListID)
	if watch, ok := session.watches[listID]; ok {
		watch.Unsubscribe()
		delete(session.watches, listID)
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      frameListUnsubscribed,
		RequestID: frame.RequestID,
		Payload:   mustJSON(listPayload{ListID: listID}),
	})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
