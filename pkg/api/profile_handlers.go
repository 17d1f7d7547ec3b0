package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/httputil"
)

// ResourcePermissionRequest is the body of PUT /permissions/profiles/{id}/resource-permissions
type ResourcePermissionRequest struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
	Granted   *bool  `json:"granted,omitempty"`
}

// FieldPermissionRequest is the body of PUT /permissions/profiles/{id}/field-permissions
type FieldPermissionRequest struct {
	Resource   string `json:"resource"`
	Field      string `json:"field"`
	Permission string `json:"permission_type"`
}

func profileRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

// listProfiles handles GET /permissions/profiles
func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.catalog.FindAllProfiles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []authz.Profile{}
	}
	_ = httputil.WriteSuccess(w, profiles)
}

// getProfile handles GET /permissions/profiles/{id}
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	profile, err := s.catalog.FindProfileByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, profile)
}

// createProfile handles POST /permissions/profiles
func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var in authz.ProfileInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	profile, err := s.catalog.CreateProfile(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeProfileCreate, audit.ResourceTypeProfile,
		profileRef(profile.ID), &audit.ChangeDetails{After: profile}, fmt.Sprintf("Profile %s created", profile.Code)))
	_ = httputil.WriteCreated(w, profile)
}

// updateProfile handles PUT /permissions/profiles/{id}
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in authz.ProfileInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	before, err := s.catalog.FindProfileByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := s.catalog.UpdateProfile(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeProfileUpdate, audit.ResourceTypeProfile,
		profileRef(id), &audit.ChangeDetails{Before: before, After: profile}, fmt.Sprintf("Profile %s updated", profile.Code)))
	_ = httputil.WriteSuccess(w, profile)
}

// deleteProfile handles DELETE /permissions/profiles/{id}. A profile any
// assignment still references answers 409.
func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	before, err := s.catalog.FindProfileByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.catalog.DeleteProfile(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeProfileDelete, audit.ResourceTypeProfile,
		profileRef(id), &audit.ChangeDetails{Before: before}, fmt.Sprintf("Profile %s deleted", before.Code)))
	httputil.WriteNoContent(w)
}

// getProfileGrants handles GET /permissions/profiles/{id}/grants
func (s *Server) getProfileGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	grants, err := s.catalog.ListProfilePermissions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if grants.Resources == nil {
		grants.Resources = []authz.ResourcePermission{}
	}
	if grants.Fields == nil {
		grants.Fields = []authz.FieldPermission{}
	}
	_ = httputil.WriteSuccess(w, grants)
}

// setResourcePermission handles PUT /permissions/profiles/{id}/resource-permissions.
// granted defaults to true.
func (s *Server) setResourcePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req ResourcePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Resource == "" || req.Operation == "" {
		httputil.WriteBadRequest(w, "resource and operation are required")
		return
	}
	granted := true
	if req.Granted != nil {
		granted = *req.Granted
	}

	if err := s.catalog.SetResourcePermission(r.Context(), id, req.Resource, req.Operation, granted); err != nil {
		writeError(w, r, err)
		return
	}

	scope := authz.ScopeAuthority(req.Resource, req.Operation)
	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeGrantSet, audit.ResourceTypeGrant,
		profileRef(id)+":"+scope, &audit.ChangeDetails{After: map[string]interface{}{"granted": granted}},
		fmt.Sprintf("Grant %s set on profile %d", scope, id)))
	httputil.WriteNoContent(w)
}

// revokeResourcePermission handles DELETE /permissions/profiles/{id}/resource-permissions?resource=&operation=
func (s *Server) revokeResourcePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	q, ok := httputil.RequireQueryOrError(w, r, "resource", "operation")
	if !ok {
		return
	}

	if err := s.catalog.RevokeResourcePermission(r.Context(), id, q["resource"], q["operation"]); err != nil {
		writeError(w, r, err)
		return
	}

	scope := authz.ScopeAuthority(q["resource"], q["operation"])
	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeGrantRevoke, audit.ResourceTypeGrant,
		profileRef(id)+":"+scope, nil, fmt.Sprintf("Grant %s revoked from profile %d", scope, id)))
	httputil.WriteNoContent(w)
}

// setFieldPermission handles PUT /permissions/profiles/{id}/field-permissions
func (s *Server) setFieldPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req FieldPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Resource == "" {
		httputil.WriteBadRequest(w, "resource is required")
		return
	}
	access, err := authz.ParseFieldAccess(req.Permission)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.catalog.SetFieldPermission(r.Context(), id, req.Resource, req.Field, access); err != nil {
		writeError(w, r, err)
		return
	}

	ref := fmt.Sprintf("%d:%s.%s", id, authz.NormalizeCode(req.Resource), req.Field)
	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeFieldGrantSet, audit.ResourceTypeGrant,
		ref, &audit.ChangeDetails{After: map[string]interface{}{"permission_type": access}},
		fmt.Sprintf("Field %s set to %s", ref, access)))
	httputil.WriteNoContent(w)
}

// clearFieldPermission handles DELETE /permissions/profiles/{id}/field-permissions?resource=&field=
func (s *Server) clearFieldPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	q, ok := httputil.RequireQueryOrError(w, r, "resource", "field")
	if !ok {
		return
	}

	if err := s.catalog.ClearFieldPermission(r.Context(), id, q["resource"], q["field"]); err != nil {
		writeError(w, r, err)
		return
	}

	ref := fmt.Sprintf("%d:%s.%s", id, authz.NormalizeCode(q["resource"]), q["field"])
	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeFieldGrantClear, audit.ResourceTypeGrant,
		ref, nil, fmt.Sprintf("Field %s cleared", ref)))
	httputil.WriteNoContent(w)
}
