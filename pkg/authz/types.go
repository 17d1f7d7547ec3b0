package authz

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AdminProfileCode is the profile that makes a user an administrator
const AdminProfileCode = "ADMIN"

// FieldAccess is the access level a user has on a single field of a resource
type FieldAccess string

const (
	FieldEdit   FieldAccess = "EDIT"
	FieldRead   FieldAccess = "READ"
	FieldHidden FieldAccess = "HIDDEN"
)

// restrictiveness orders access levels; higher wins when profiles disagree
func (a FieldAccess) restrictiveness() int {
	switch a {
	case FieldHidden:
		return 3
	case FieldRead:
		return 2
	case FieldEdit:
		return 1
	default:
		return 0
	}
}

// Valid reports whether a is one of the known access levels
func (a FieldAccess) Valid() bool {
	return a.restrictiveness() > 0
}

// MoreRestrictive returns whichever of a and b grants less
func MoreRestrictive(a, b FieldAccess) FieldAccess {
	if b.restrictiveness() > a.restrictiveness() {
		return b
	}
	return a
}

// ParseFieldAccess parses EDIT, READ or HIDDEN (case-insensitive)
func ParseFieldAccess(s string) (FieldAccess, error) {
	a := FieldAccess(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFieldAccess, s)
	}
	return a, nil
}

// MergeMode selects how the snapshot field map combines profiles that
// disagree on the same field
type MergeMode string

const (
	// MergeOverwrite keeps the value of the last profile processed
	MergeOverwrite MergeMode = "overwrite"
	// MergeRestrictive keeps the most restrictive value, like GetFieldPermission
	MergeRestrictive MergeMode = "restrictive"
)

// ParseMergeMode parses "overwrite" or "restrictive"
func ParseMergeMode(s string) (MergeMode, error) {
	switch m := MergeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case MergeOverwrite, MergeRestrictive:
		return m, nil
	default:
		return "", fmt.Errorf("invalid snapshot field merge mode: %q", s)
	}
}

// DeletionPolicy selects whether removals delete rows or flip them inactive
type DeletionPolicy int

const (
	DeletePhysical DeletionPolicy = iota
	DeleteTombstone
)

func (p DeletionPolicy) String() string {
	switch p {
	case DeleteTombstone:
		return "tombstone"
	default:
		return "physical"
	}
}

// ParseDeletionPolicy parses "physical" or "tombstone"
func ParseDeletionPolicy(s string) (DeletionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "physical":
		return DeletePhysical, nil
	case "tombstone":
		return DeleteTombstone, nil
	default:
		return DeletePhysical, fmt.Errorf("invalid deletion policy: %q", s)
	}
}

// Profile is a named bundle of grants. Lower Level means more privileged.
type Profile struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Level       int       `json:"level"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileAssignment links a user to a profile
type ProfileAssignment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ProfileID  int64     `json:"profile_id"`
	Active     bool      `json:"active"`
	AssignedAt time.Time `json:"assigned_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserProfile is an assignment joined with its profile
type UserProfile struct {
	AssignmentID int64     `json:"assignment_id"`
	UserID       int64     `json:"user_id"`
	Active       bool      `json:"active"`
	AssignedAt   time.Time `json:"assigned_at"`
	Profile      Profile   `json:"profile"`
}

// Resource is a protected business entity type, e.g. TASK
type Resource struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Operation is an action on a resource, e.g. DELETE
type Operation struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ResourcePermission grants or denies one operation on a resource to a profile
type ResourcePermission struct {
	ID            int64  `json:"id"`
	ProfileID     int64  `json:"profile_id"`
	ResourceCode  string `json:"resource"`
	OperationCode string `json:"operation"`
	Granted       bool   `json:"granted"`
}

// FieldPermission sets the access level of one field of a resource for a profile
type FieldPermission struct {
	ID           int64       `json:"id"`
	ProfileID    int64       `json:"profile_id"`
	ResourceCode string      `json:"resource"`
	FieldName    string      `json:"field"`
	Access       FieldAccess `json:"permission_type"`
}

// ProfileGrants is every grant row attached to a profile
type ProfileGrants struct {
	Profile   Profile              `json:"profile"`
	Resources []ResourcePermission `json:"resource_permissions"`
	Fields    []FieldPermission    `json:"field_permissions"`
}

// ProfileSummary is the profile metadata carried in a snapshot
type ProfileSummary struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

// Snapshot is the resolved view of everything a user may do
type Snapshot struct {
	UserID           int64                             `json:"user_id"`
	Profiles         []ProfileSummary                  `json:"profiles"`
	Permissions      map[string][]string               `json:"permissions"`
	FieldPermissions map[string]map[string]FieldAccess `json:"field_permissions"`
}

// ProfileCodes returns the codes of the snapshot's active profiles in resolution order
func (s *Snapshot) ProfileCodes() []string {
	codes := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		codes = append(codes, p.Code)
	}
	return codes
}

// HasProfile reports whether code is one of the snapshot's active profiles
func (s *Snapshot) HasProfile(code string) bool {
	code = NormalizeCode(code)
	for _, p := range s.Profiles {
		if p.Code == code {
			return true
		}
	}
	return false
}

// Can reports whether the snapshot grants operation on resource
func (s *Snapshot) Can(resource, operation string) bool {
	for _, op := range s.Permissions[resource] {
		if op == operation {
			return true
		}
	}
	return false
}

// ResourcesWith returns the sorted resources on which operation is granted
func (s *Snapshot) ResourcesWith(operation string) []string {
	resources := make([]string, 0)
	for resource := range s.Permissions {
		if s.Can(resource, operation) {
			resources = append(resources, resource)
		}
	}
	sort.Strings(resources)
	return resources
}

// NormalizeCode upper-cases and trims a profile, resource or operation code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
