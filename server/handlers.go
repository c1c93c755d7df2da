package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

type statusResponse struct {
	session.State
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// tokenResponse describes an acquired token without disclosing it.
type tokenResponse struct {
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	Scopes    []string  `json:"scopes"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// StatusHandler reports the session state (GET /)
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.status())
	}
}

// SignInHandler runs the interactive sign-in (POST /auth/signin). The request
// stays open until the user completes or abandons the flow.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.sessions.SignIn(r.Context()); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.status())
	}
}

// SignOutHandler signs out (POST /auth/signout). The local session is
// always cleared; a remote failure is reported alongside the new state.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.SignOut(r.Context()); err != nil {
			if errors.Is(err, session.ErrTransitionInProgress) {
				writeSessionError(w, err)
				return
			}
			log.Err(err).Msg("Sign-out: remote sign-out failed")
		}
		writeJSON(w, http.StatusOK, s.status())
	}
}

// ClearErrorHandler forgets the last error (POST /auth/error/clear)
func (s *Server) ClearErrorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.ClearError()
		writeJSON(w, http.StatusOK, s.status())
	}
}

// MailHandler serves the mail view (GET /mail)
func (s *Server) MailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.sessions.AcquireToken(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"view":    MailView.Name,
			"account": s.status().Account,
			"token":   describeToken(tok),
		})
	}
}

// ConversationHandler serves one conversation (GET /conversations/{id})
func (s *Server) ConversationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.sessions.AcquireToken(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"view":           ConversationView.Name,
			"conversationId": r.PathValue("id"),
			"token":          describeToken(tok),
		})
	}
}

func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no view at "+r.URL.Path)
	}
}

func (s *Server) status() statusResponse {
	return statusResponse{
		State:       s.sessions.State(),
		DisplayName: s.sessions.DisplayName(),
		Email:       s.sessions.Email(),
	}
}

func describeToken(tok identity.Token) tokenResponse {
	return tokenResponse{
		TokenType: tok.TokenType,
		ExpiresAt: tok.ExpiresAt,
		Scopes:    tok.Scopes,
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoAccount):
		writeError(w, http.StatusUnauthorized, "no_account", err.Error())
	case errors.Is(err, session.ErrTransitionInProgress), errors.Is(err, session.ErrAlreadySignedIn):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, identity.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "provider_unavailable", err.Error())
	case errors.Is(err, identity.ErrInteractionFailed):
		writeError(w, http.StatusUnauthorized, "interaction_failed", err.Error())
	case errors.Is(err, identity.ErrSilentRenewalFailed):
		writeError(w, http.StatusUnauthorized, "silent_renewal_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}
