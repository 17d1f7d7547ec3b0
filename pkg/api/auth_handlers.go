package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/auth"
	"github.com/workdesk/accessd/pkg/httputil"
	"github.com/workdesk/accessd/pkg/middleware"
)

// login handles POST /auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !httputil.ParseJSONOrError(w, r, &creds) {
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	result, err := s.auth.AuthenticateUser(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInactiveUser) {
			s.recordAudit(r, audit.LogAuthentication(r.Context(), s.audit, r, audit.EventTypeAuthLoginFailed,
				nil, creds.Username, audit.EventStatusFailure, err.Error()))
		}
		writeError(w, r, err)
		return
	}

	userID := result.User.UserID
	s.recordAudit(r, audit.LogAuthentication(r.Context(), s.audit, r, audit.EventTypeAuthLogin,
		&userID, result.User.Username, audit.EventStatusSuccess, "User logged in"))

	_ = httputil.WriteSuccess(w, result)
}

// getCurrentUser handles GET /auth/me
func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.GetCurrentUser(r.Context(), middleware.GetPrincipal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

// getOwnPermissions handles GET /auth/permissions
func (s *Server) getOwnPermissions(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.auth.GetUserPermissions(r.Context(), middleware.GetPrincipal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, snapshot)
}

// getAllowedScreens handles GET /auth/screens
func (s *Server) getAllowedScreens(w http.ResponseWriter, r *http.Request) {
	screens, err := s.auth.GetAllowedScreens(r.Context(), middleware.GetPrincipal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"operation": s.auth.Options().ScreenOperation,
		"screens":   screens,
	})
}
