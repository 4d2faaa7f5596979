package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
	"github.com/teemow/followmail/internal/store"
)

// stateCookieName holds the OAuth state between login-url and the callback.
const stateCookieName = "oauth_state"

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to build login URL", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/oauth2callback",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"url": s.auth.AuthURL(state)})
}

// handleOAuthCallback completes the login: it exchanges the code, records
// the user and their refresh token, and sets the session cookie.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	// A state cookie left by /api/login-url must match when the client
	// forwards the state.
	if state := r.URL.Query().Get("state"); state != "" {
		if c, err := r.Cookie(stateCookieName); err == nil && c.Value != state {
			writeError(w, http.StatusBadRequest, "OAuth state mismatch")
			return
		}
	}

	action := instrumentation.NewAction(instrumentation.ActionLogin, "").WithSpanContext(ctx)

	tok, err := s.auth.Exchange(ctx, code)
	if err != nil {
		s.audit.Log(action.Complete(err))
		s.logger.WarnContext(ctx, "oauth code exchange failed", logging.Err(err))
		writeErrorDetails(w, http.StatusInternalServerError, "OAuth callback failed", err)
		return
	}

	info, err := s.auth.UserInfo(ctx, tok)
	if err != nil {
		s.audit.Log(action.Complete(err))
		s.logger.WarnContext(ctx, "userinfo lookup failed", logging.Err(err))
		writeErrorDetails(w, http.StatusInternalServerError, "OAuth callback failed", err)
		return
	}
	action.UserEmail = info.Email

	u, err := s.store.UpsertUser(ctx, info.Id, info.Email, tok.RefreshToken)
	if err != nil {
		s.audit.Log(action.Complete(err))
		s.logger.ErrorContext(ctx, "failed to store user", logging.Err(err))
		writeErrorDetails(w, http.StatusInternalServerError, "OAuth callback failed", err)
		return
	}

	if err := s.sessions.SetCookie(w, u.GoogleID); err != nil {
		s.audit.Log(action.Complete(err))
		writeErrorDetails(w, http.StatusInternalServerError, "OAuth callback failed", err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/api/oauth2callback", MaxAge: -1})

	s.audit.Log(action.Complete(nil))
	s.logger.InfoContext(ctx, "user logged in", logging.UserHash(u.Email))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful"})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, u *store.User) {
	writeJSON(w, http.StatusOK, map[string]string{"email": u.Email, "googleId": u.GoogleID})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request, u *store.User) {
	writeJSON(w, http.StatusOK, map[string]string{"googleId": u.GoogleID})
}

// handleProfile returns the Google profile of the session user.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, u *store.User) {
	if u.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, "No refresh token")
		return
	}

	ts := s.auth.TokenSource(r.Context(), u.RefreshToken)
	info, err := s.auth.UserInfoFromSource(r.Context(), ts)
	if err != nil {
		s.upstreamError(w, r, "Failed to fetch profile", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
