package api

import (
	"net/http"
	"strconv"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/httputil"
	"github.com/workdesk/accessd/pkg/middleware"
)

// targetUser parses {userId} and checks the caller may query it. Callers may
// always query themselves; querying anyone else needs the admin profile at
// request time.
func (s *Server) targetUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return 0, false
	}

	principal := middleware.GetPrincipal(r)
	if principal.UserID == userID {
		return userID, true
	}

	admin, err := s.resolver.IsAdmin(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	if !admin {
		s.recordAudit(r, audit.LogDenied(r.Context(), s.audit, r, audit.ResourceTypeUser,
			strconv.FormatInt(userID, 10), "admin required to query another user"))
		httputil.WriteForbidden(w, "cannot query permissions of another user")
		return 0, false
	}
	return userID, true
}

// checkPermission handles GET /permissions/check/{userId}?resource=&operation=
// and answers a bare JSON boolean
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}
	q, ok := httputil.RequireQueryOrError(w, r, "resource", "operation")
	if !ok {
		return
	}

	allowed, err := s.resolver.HasPermission(r.Context(), userID, q["resource"], q["operation"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, allowed)
}

// getUserPermissions handles GET /permissions/user/{userId}
func (s *Server) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}
	snapshot, err := s.resolver.GetUserPermissions(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, snapshot)
}

// getFieldPermission handles GET /permissions/field-permission/{userId}?resource=&field=
// and answers the access level name as a JSON string
func (s *Server) getFieldPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}
	q, ok := httputil.RequireQueryOrError(w, r, "resource", "field")
	if !ok {
		return
	}

	access, err := s.resolver.GetFieldPermission(r.Context(), userID, q["resource"], q["field"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, access)
}

// canEditField handles GET /permissions/can-edit/{userId}?resource=&field=
func (s *Server) canEditField(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}
	q, ok := httputil.RequireQueryOrError(w, r, "resource", "field")
	if !ok {
		return
	}

	canEdit, err := s.resolver.CanEditField(r.Context(), userID, q["resource"], q["field"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, canEdit)
}

// isAdmin handles GET /permissions/is-admin/{userId}
func (s *Server) isAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}
	admin, err := s.resolver.IsAdmin(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, admin)
}
