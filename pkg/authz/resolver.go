package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/workdesk/accessd/pkg/observability"
)

// Policy answers access questions for a concrete user. The live middleware
// gate and the authority minter both consume it, so coarse token authorities
// and per-request checks come from the same decisions.
type Policy interface {
	CanPerform(ctx context.Context, userID int64, resource, operation string) (bool, error)
	FieldAccess(ctx context.Context, userID int64, resource, field string) (FieldAccess, error)
}

// ResolverOptions tunes resolution defaults
type ResolverOptions struct {
	// FieldDefault applies when no active profile has a row for the field
	FieldDefault FieldAccess

	// SnapshotFieldMerge decides how GetUserPermissions merges field rows
	SnapshotFieldMerge MergeMode

	// AdminProfileCode is the profile checked by IsAdmin
	AdminProfileCode string
}

// DefaultResolverOptions returns EDIT default, overwrite merge and ADMIN
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		FieldDefault:       FieldEdit,
		SnapshotFieldMerge: MergeOverwrite,
		AdminProfileCode:   AdminProfileCode,
	}
}

// Resolver evaluates a user's effective permissions from the store on every
// call. It keeps no state between calls.
type Resolver struct {
	repo    Repository
	opts    ResolverOptions
	metrics *observability.Metrics
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(repo Repository, opts ResolverOptions, metrics *observability.Metrics) *Resolver {
	if !opts.FieldDefault.Valid() {
		opts.FieldDefault = FieldEdit
	}
	if opts.SnapshotFieldMerge == "" {
		opts.SnapshotFieldMerge = MergeOverwrite
	}
	if opts.AdminProfileCode == "" {
		opts.AdminProfileCode = AdminProfileCode
	}
	return &Resolver{repo: repo, opts: opts, metrics: metrics}
}

// Options returns the effective options
func (r *Resolver) Options() ResolverOptions {
	return r.opts
}

func (r *Resolver) activeProfiles(ctx context.Context, userID int64) ([]Profile, []int64, error) {
	profiles, err := r.repo.ListActiveProfiles(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load active profiles for user %d: %w", userID, err)
	}
	ids := make([]int64, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	return profiles, ids, nil
}

func boolResult(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

// HasPermission reports whether any active profile of the user has a granted
// row for (resource, operation). No row means deny.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, resourceCode, operationCode string) (bool, error) {
	start := time.Now()
	resourceCode, operationCode = NormalizeCode(resourceCode), NormalizeCode(operationCode)

	_, ids, err := r.activeProfiles(ctx, userID)
	if err != nil {
		r.metrics.ObservePermissionCheck("resource", "error", time.Since(start))
		return false, err
	}

	allowed := false
	if len(ids) > 0 {
		grants, err := r.repo.ListResourcePermissions(ctx, PermissionFilter{
			ProfileIDs:    ids,
			ResourceCode:  resourceCode,
			OperationCode: operationCode,
		})
		if err != nil {
			r.metrics.ObservePermissionCheck("resource", "error", time.Since(start))
			return false, fmt.Errorf("failed to check permission %s:%s: %w", resourceCode, operationCode, err)
		}
		for _, g := range grants {
			if g.Granted {
				allowed = true
				break
			}
		}
	}

	r.metrics.ObservePermissionCheck("resource", boolResult(allowed), time.Since(start))
	return allowed, nil
}

// GetFieldPermission resolves a field across active profiles, most
// restrictive wins (HIDDEN over READ over EDIT). With no rows the configured
// default applies.
func (r *Resolver) GetFieldPermission(ctx context.Context, userID int64, resourceCode, fieldName string) (FieldAccess, error) {
	start := time.Now()
	resourceCode = NormalizeCode(resourceCode)
	if resourceCode == "" || strings.TrimSpace(fieldName) == "" {
		return "", fmt.Errorf("%w: resource and field name are required", ErrInvalidInput)
	}

	_, ids, err := r.activeProfiles(ctx, userID)
	if err != nil {
		r.metrics.ObservePermissionCheck("field", "error", time.Since(start))
		return "", err
	}

	grants, err := r.repo.ListFieldPermissions(ctx, PermissionFilter{
		ProfileIDs:   ids,
		ResourceCode: resourceCode,
		FieldName:    fieldName,
	})
	if err != nil {
		r.metrics.ObservePermissionCheck("field", "error", time.Since(start))
		return "", fmt.Errorf("failed to resolve field %s.%s: %w", resourceCode, fieldName, err)
	}

	access := r.opts.FieldDefault
	if len(grants) > 0 {
		access = grants[0].Access
		for _, g := range grants[1:] {
			access = MoreRestrictive(access, g.Access)
		}
	}

	r.metrics.ObservePermissionCheck("field", string(access), time.Since(start))
	return access, nil
}

// CanEditField reports whether the resolved field access is EDIT
func (r *Resolver) CanEditField(ctx context.Context, userID int64, resourceCode, fieldName string) (bool, error) {
	access, err := r.GetFieldPermission(ctx, userID, resourceCode, fieldName)
	if err != nil {
		return false, err
	}
	return access == FieldEdit, nil
}

// GetUserPermissions builds the full snapshot for a user: active profiles in
// resolution order, granted operations per resource (sorted union) and the
// field map merged per ResolverOptions.SnapshotFieldMerge.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID int64) (*Snapshot, error) {
	start := time.Now()

	snapshot, err := r.buildSnapshot(ctx, userID)
	if err != nil {
		r.metrics.ObservePermissionCheck("snapshot", "error", time.Since(start))
		return nil, err
	}

	r.metrics.ObservePermissionCheck("snapshot", "ok", time.Since(start))
	return snapshot, nil
}

func (r *Resolver) buildSnapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	profiles, ids, err := r.activeProfiles(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		UserID:           userID,
		Profiles:         make([]ProfileSummary, 0, len(profiles)),
		Permissions:      make(map[string][]string),
		FieldPermissions: make(map[string]map[string]FieldAccess),
	}
	for _, p := range profiles {
		snapshot.Profiles = append(snapshot.Profiles, ProfileSummary{
			ID:          p.ID,
			Code:        p.Code,
			Name:        p.Name,
			Description: p.Description,
			Level:       p.Level,
		})
	}
	if len(ids) == 0 {
		return snapshot, nil
	}

	resourceGrants, err := r.repo.ListResourcePermissions(ctx, PermissionFilter{ProfileIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load resource permissions for user %d: %w", userID, err)
	}

	granted := make(map[string]map[string]bool)
	for _, g := range resourceGrants {
		if !g.Granted {
			continue
		}
		if granted[g.ResourceCode] == nil {
			granted[g.ResourceCode] = make(map[string]bool)
		}
		granted[g.ResourceCode][g.OperationCode] = true
	}
	for resource, ops := range granted {
		list := make([]string, 0, len(ops))
		for op := range ops {
			list = append(list, op)
		}
		sort.Strings(list)
		snapshot.Permissions[resource] = list
	}

	fieldGrants, err := r.repo.ListFieldPermissions(ctx, PermissionFilter{ProfileIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load field permissions for user %d: %w", userID, err)
	}

	// rows are applied profile by profile in resolution order
	byProfile := make(map[int64][]FieldPermission, len(ids))
	for _, g := range fieldGrants {
		byProfile[g.ProfileID] = append(byProfile[g.ProfileID], g)
	}
	for _, id := range ids {
		for _, g := range byProfile[id] {
			fields := snapshot.FieldPermissions[g.ResourceCode]
			if fields == nil {
				fields = make(map[string]FieldAccess)
				snapshot.FieldPermissions[g.ResourceCode] = fields
			}
			current, seen := fields[g.FieldName]
			if seen && r.opts.SnapshotFieldMerge == MergeRestrictive {
				fields[g.FieldName] = MoreRestrictive(current, g.Access)
				continue
			}
			fields[g.FieldName] = g.Access
		}
	}

	return snapshot, nil
}

// HasAnyProfile reports whether the user holds at least one of the given
// profile codes as an active profile
func (r *Resolver) HasAnyProfile(ctx context.Context, userID int64, profileCodes ...string) (bool, error) {
	if len(profileCodes) == 0 {
		return false, nil
	}

	start := time.Now()
	profiles, _, err := r.activeProfiles(ctx, userID)
	if err != nil {
		r.metrics.ObservePermissionCheck("profile", "error", time.Since(start))
		return false, err
	}

	wanted := make(map[string]bool, len(profileCodes))
	for _, code := range profileCodes {
		wanted[NormalizeCode(code)] = true
	}

	found := false
	for _, p := range profiles {
		if wanted[p.Code] {
			found = true
			break
		}
	}

	r.metrics.ObservePermissionCheck("profile", boolResult(found), time.Since(start))
	return found, nil
}

// IsAdmin reports whether the user holds the admin profile
func (r *Resolver) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return r.HasAnyProfile(ctx, userID, r.opts.AdminProfileCode)
}

// CanPerform implements Policy
func (r *Resolver) CanPerform(ctx context.Context, userID int64, resource, operation string) (bool, error) {
	return r.HasPermission(ctx, userID, resource, operation)
}

// FieldAccess implements Policy
func (r *Resolver) FieldAccess(ctx context.Context, userID int64, resource, field string) (FieldAccess, error) {
	return r.GetFieldPermission(ctx, userID, resource, field)
}

var _ Policy = (*Resolver)(nil)
