package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/louisbranch/taskflow/internal/services/identity"
)

type identityResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type sessionResponse struct {
	Token     string           `json:"token,omitempty"`
	ExpiresAt time.Time        `json:"expires_at,omitzero"`
	Identity  identityResponse `json:"identity"`
}

func identityFromDomain(ident identity.Identity) identityResponse {
	return identityResponse{
		ID:          ident.ID,
		Kind:        string(ident.Kind),
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
	}
}

func sessionFromDomain(session identity.Session) sessionResponse {
	return sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Identity:  identityFromDomain(session.Identity),
	}
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type guestRequest struct {
	GuestID string `json:"guest_id"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "sign up", err)
		return
	}
	session, err := h.Identity.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, r, "sign up", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionFromDomain(session))
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "sign in", err)
		return
	}
	session, err := h.Identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "sign in", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionFromDomain(session))
}

func (h *handler) guest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "guest", err)
		return
	}
	session, err := h.Identity.Guest(r.Context(), req.GuestID)
	if err != nil {
		writeError(w, r, "guest", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionFromDomain(session))
}

func (h *handler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Identity.SignOut(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) currentSession(w http.ResponseWriter, _ *http.Request, actor identity.Identity) {
	writeJSON(w, http.StatusOK, sessionResponse{Identity: identityFromDomain(actor)})
}

// requestPasswordReset always answers 202 for well-formed requests so the
// response does not reveal whether an account exists.
func (h *handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "password reset", err)
		return
	}
	if err := h.Identity.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, "password reset", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "password reset confirm", err)
		return
	}
	if err := h.Identity.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, "password reset confirm", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) startOAuth(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.Identity.StartOAuth(r.Context(), r.PathValue("provider"), r.URL.Query().Get("return_to"))
	if err != nil {
		writeError(w, r, "oauth start", err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// oauthCallback hands the session to the app through the return path
// fragment, or as JSON when the flow started without one.
func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := h.Identity.CompleteOAuth(r.Context(), r.PathValue("provider"), query.Get("code"), query.Get("state"))
	if err != nil {
		writeError(w, r, "oauth callback", err)
		return
	}
	if returnTo := strings.TrimSpace(result.ReturnTo); returnTo != "" {
		fragment := url.Values{"token": {result.Session.Token}}
		http.Redirect(w, r, returnTo+"#"+fragment.Encode(), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, sessionFromDomain(result.Session))
}
