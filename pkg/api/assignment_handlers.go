package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/httputil"
)

// AssignProfileRequest is the body of POST /permissions/users/profiles
type AssignProfileRequest struct {
	UserID    int64 `json:"user_id"`
	ProfileID int64 `json:"profile_id"`
	Active    *bool `json:"active,omitempty"`
}

// RemoveAllResponse reports how many assignments a bulk removal affected
type RemoveAllResponse struct {
	UserID  int64 `json:"user_id"`
	Removed int64 `json:"removed"`
}

// assignProfile handles POST /permissions/users/profiles. Assigning an
// existing pair updates its active flag. active defaults to true.
func (s *Server) assignProfile(w http.ResponseWriter, r *http.Request) {
	var req AssignProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.ProfileID <= 0 {
		httputil.WriteBadRequest(w, "user_id and profile_id must be positive")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	assignment, err := s.ledger.AssignProfileToUser(r.Context(), req.UserID, req.ProfileID, active)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeAssignmentUpsert, audit.ResourceTypeAssignment,
		fmt.Sprintf("%d:%d", req.UserID, req.ProfileID), &audit.ChangeDetails{After: assignment},
		fmt.Sprintf("Profile %d assigned to user %d", req.ProfileID, req.UserID)))
	_ = httputil.WriteSuccess(w, assignment)
}

// listUserProfiles handles GET /permissions/users/{userId}/profiles
func (s *Server) listUserProfiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}
	profiles, err := s.ledger.FindUserProfiles(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []authz.UserProfile{}
	}
	_ = httputil.WriteSuccess(w, profiles)
}

// removeProfile handles DELETE /permissions/users/{userId}/profiles/{profileId}
func (s *Server) removeProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}
	profileID, ok := httputil.ParsePathInt64OrError(w, r, "profileId")
	if !ok {
		return
	}

	if err := s.ledger.RemoveProfileFromUser(r.Context(), userID, profileID); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeAssignmentRemove, audit.ResourceTypeAssignment,
		fmt.Sprintf("%d:%d", userID, profileID), nil,
		fmt.Sprintf("Profile %d removed from user %d", profileID, userID)))
	httputil.WriteNoContent(w)
}

// removeAllProfiles handles DELETE /permissions/users/{userId}/profiles
func (s *Server) removeAllProfiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}

	n, err := s.ledger.RemoveAllProfilesFromUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), r, audit.EventTypeAssignmentRemoveAll, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = strconv.FormatInt(userID, 10)
	event.Metadata["removed"] = n
	event.Message = fmt.Sprintf("%d assignment(s) removed from user %d", n, userID)
	s.recordAudit(r, s.audit.Log(r.Context(), event))

	_ = httputil.WriteSuccess(w, RemoveAllResponse{UserID: userID, Removed: n})
}
