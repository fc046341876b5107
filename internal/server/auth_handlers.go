package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/storage"
)

type loginRequest struct {
	WebID    string `json:"webId"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
}

type loginErrorResponse struct {
	Error      string `json:"error"`
	TrialsLeft int    `json:"trialsLeft"`
}

// handleLogin authenticates a web user and starts a session.
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	login, ok := running(w, s.sys.Login())
	if !ok {
		return
	}

	user, err := login.LoginWeb(r.Context(), req.WebID, req.Password)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			writeError(w, err)
			return
		}
		slog.Warn("web login failed", "web_id", req.WebID, "error", err)
		respondJSON(w, status, loginErrorResponse{
			Error:      err.Error(),
			TrialsLeft: login.TrialsLeft(auth.ChannelWeb),
		})
		return
	}

	session, err := s.sessions.Create(r.Context(), user.UserID, auth.ChannelWeb)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.tokens.Issue(session, string(user.Role))
	if err != nil {
		writeError(w, err)
		return
	}

	s.auth.SetSessionCookie(w, token, int(s.sessions.Duration().Seconds()))
	slog.Info("web login", "user_id", user.UserID)
	respondJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		UserID:    user.UserID,
		Role:      string(user.Role),
	})
}

// handleLogout ends the current session.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session, ok := auth.SessionFromContext(r.Context()); ok {
		if err := s.sessions.Delete(r.Context(), session.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	if login := s.sys.Login(); login != nil {
		login.Logout(auth.ChannelWeb)
	}
	s.auth.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	// Channel is "web" or "panel". Default: "web"
	Channel     string `json:"channel"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// handleChangePassword changes the web or panel password of the caller.
func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	login, ok := running(w, s.sys.Login())
	if !ok {
		return
	}

	var err error
	switch req.Channel {
	case "", "web":
		err = s.changeWebPassword(r, login, user, req)
	case "panel":
		if user.PanelID == "" {
			respondError(w, http.StatusBadRequest, "user has no panel id")
			return
		}
		err = login.ChangePanelPassword(r.Context(), user.PanelID, req.OldPassword, req.NewPassword)
	default:
		respondError(w, http.StatusBadRequest, "channel must be web or panel")
		return
	}

	if err != nil {
		// A wrong old password must not look like an expired session.
		if statusFor(err) == http.StatusUnauthorized {
			respondError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	slog.Info("password changed", "user_id", user.UserID, "channel", req.Channel)
	w.WriteHeader(http.StatusNoContent)
}

// changeWebPassword revokes every session of the user, so the caller logs
// in again with the new password.
func (s *HTTPServer) changeWebPassword(r *http.Request, login *auth.LoginManager, user *storage.User, req changePasswordRequest) error {
	if err := login.ChangeWebPassword(r.Context(), user.WebID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return s.sessions.DeleteByUserID(r.Context(), user.UserID)
}
