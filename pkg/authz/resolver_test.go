package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workdesk/accessd/pkg/observability"
)

const userU int64 = 42

func TestResolver_AnyProfileGrantAllows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.grant(t, f.manager, "TASK", "DELETE", true)
	f.assign(t, userU, f.manager, true)
	f.assign(t, userU, f.user, true)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)

	allowed, err := resolver.HasPermission(ctx, userU, "TASK", "DELETE")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = resolver.HasPermission(ctx, userU, "task", " delete ")
	require.NoError(t, err)
	assert.True(t, allowed, "codes are case-insensitive")

	allowed, err = resolver.HasPermission(ctx, userU, "TASK", "CREATE")
	require.NoError(t, err)
	assert.False(t, allowed, "no row means deny")
}

func TestResolver_HasPermission(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		allowed bool
	}{
		{
			name: "explicit deny on one profile does not cancel a grant on another",
			setup: func(t *testing.T, f *fixture) {
				f.grant(t, f.manager, "TASK", "DELETE", true)
				f.grant(t, f.user, "TASK", "DELETE", false)
				f.assign(t, userU, f.manager, true)
				f.assign(t, userU, f.user, true)
			},
			allowed: true,
		},
		{
			name: "explicit deny only",
			setup: func(t *testing.T, f *fixture) {
				f.grant(t, f.user, "TASK", "DELETE", false)
				f.assign(t, userU, f.user, true)
			},
			allowed: false,
		},
		{
			name: "grant on inactive assignment is ignored",
			setup: func(t *testing.T, f *fixture) {
				f.grant(t, f.manager, "TASK", "DELETE", true)
				f.assign(t, userU, f.manager, false)
				f.assign(t, userU, f.user, true)
			},
			allowed: false,
		},
		{
			name: "grant on deactivated profile is ignored",
			setup: func(t *testing.T, f *fixture) {
				f.grant(t, f.manager, "TASK", "DELETE", true)
				f.assign(t, userU, f.manager, true)
				inactive := false
				_, err := f.catalog.UpdateProfile(context.Background(), f.manager.ID, ProfileInput{
					Code: "MANAGER", Name: "MANAGER", Level: 10, Active: &inactive,
				})
				require.NoError(t, err)
			},
			allowed: false,
		},
		{
			name: "grant held by another user",
			setup: func(t *testing.T, f *fixture) {
				f.grant(t, f.manager, "TASK", "DELETE", true)
				f.assign(t, 7, f.manager, true)
			},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
			allowed, err := resolver.HasPermission(context.Background(), userU, "TASK", "DELETE")
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestResolver_MostRestrictiveFieldWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.field(t, f.manager, "TASK", "amount", FieldRead)
	f.field(t, f.user, "TASK", "amount", FieldHidden)
	f.assign(t, userU, f.manager, true)
	f.assign(t, userU, f.user, true)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)

	access, err := resolver.GetFieldPermission(ctx, userU, "TASK", "amount")
	require.NoError(t, err)
	assert.Equal(t, FieldHidden, access)

	canEdit, err := resolver.CanEditField(ctx, userU, "TASK", "amount")
	require.NoError(t, err)
	assert.False(t, canEdit)
}

func TestResolver_GetFieldPermission(t *testing.T) {
	tests := []struct {
		name    string
		manager FieldAccess
		user    FieldAccess
		want    FieldAccess
	}{
		{"no rows defaults to edit", "", "", FieldEdit},
		{"read beats edit", FieldEdit, FieldRead, FieldRead},
		{"hidden beats edit", FieldHidden, FieldEdit, FieldHidden},
		{"hidden beats read", FieldRead, FieldHidden, FieldHidden},
		{"single read", FieldRead, "", FieldRead},
		{"both edit", FieldEdit, FieldEdit, FieldEdit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.manager != "" {
				f.field(t, f.manager, "TASK", "amount", tt.manager)
			}
			if tt.user != "" {
				f.field(t, f.user, "TASK", "amount", tt.user)
			}
			f.assign(t, userU, f.manager, true)
			f.assign(t, userU, f.user, true)

			resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
			access, err := resolver.GetFieldPermission(context.Background(), userU, "TASK", "amount")
			require.NoError(t, err)
			assert.Equal(t, tt.want, access)

			canEdit, err := resolver.CanEditField(context.Background(), userU, "TASK", "amount")
			require.NoError(t, err)
			assert.Equal(t, tt.want == FieldEdit, canEdit)
		})
	}
}

func TestResolver_FieldNamesAreCaseSensitive(t *testing.T) {
	f := newFixture(t)
	f.field(t, f.user, "TASK", "amount", FieldHidden)
	f.assign(t, userU, f.user, true)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
	access, err := resolver.GetFieldPermission(context.Background(), userU, "task", "Amount")
	require.NoError(t, err)
	assert.Equal(t, FieldEdit, access)
}

func TestResolver_GetFieldPermissionRequiresName(t *testing.T) {
	f := newFixture(t)
	// an empty field filter would match every field row of the resource
	f.field(t, f.user, "TASK", "amount", FieldHidden)
	f.assign(t, userU, f.user, true)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
	ctx := context.Background()

	for _, name := range []string{"", "  "} {
		_, err := resolver.GetFieldPermission(ctx, userU, "TASK", name)
		assert.ErrorIs(t, err, ErrInvalidInput, "field %q", name)
		assert.True(t, IsValidation(err))

		canEdit, err := resolver.CanEditField(ctx, userU, "TASK", name)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.False(t, canEdit)
	}

	_, err := resolver.GetFieldPermission(ctx, userU, "", "amount")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolver_InactiveAssignmentFieldIgnored(t *testing.T) {
	f := newFixture(t)
	f.field(t, f.manager, "TASK", "amount", FieldHidden)
	f.assign(t, userU, f.manager, false)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
	access, err := resolver.GetFieldPermission(context.Background(), userU, "TASK", "amount")
	require.NoError(t, err)
	assert.Equal(t, FieldEdit, access)
}

func TestResolver_ConfigurableFieldDefault(t *testing.T) {
	f := newFixture(t)
	f.assign(t, userU, f.user, true)

	opts := DefaultResolverOptions()
	opts.FieldDefault = FieldHidden
	resolver := NewResolver(f.store, opts, nil)

	access, err := resolver.GetFieldPermission(context.Background(), userU, "TASK", "amount")
	require.NoError(t, err)
	assert.Equal(t, FieldHidden, access)
}

func TestResolver_UserWithoutProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.grant(t, f.admin, "TASK", "DELETE", true)
	f.field(t, f.admin, "TASK", "amount", FieldHidden)
	f.assign(t, 1, f.admin, true)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)

	for _, resource := range []string{"TASK", "QUOTE", "DELIVERY"} {
		for _, op := range []string{"CREATE", "READ", "UPDATE", "DELETE"} {
			allowed, err := resolver.HasPermission(ctx, userU, resource, op)
			require.NoError(t, err)
			assert.False(t, allowed, "%s:%s", resource, op)
		}
		access, err := resolver.GetFieldPermission(ctx, userU, resource, "amount")
		require.NoError(t, err)
		assert.Equal(t, FieldEdit, access)
	}

	isAdmin, err := resolver.IsAdmin(ctx, userU)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	snapshot, err := resolver.GetUserPermissions(ctx, userU)
	require.NoError(t, err)
	assert.Equal(t, userU, snapshot.UserID)
	assert.Empty(t, snapshot.Profiles)
	assert.Empty(t, snapshot.Permissions)
	assert.Empty(t, snapshot.FieldPermissions)
}

func TestResolver_GetUserPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.grant(t, f.manager, "TASK", "DELETE", true)
	f.grant(t, f.manager, "TASK", "READ", true)
	f.grant(t, f.user, "TASK", "READ", true)
	f.grant(t, f.user, "TASK", "CREATE", true)
	f.grant(t, f.user, "QUOTE", "UPDATE", false)
	f.assign(t, userU, f.user, true)
	f.assign(t, userU, f.manager, true)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
	snapshot, err := resolver.GetUserPermissions(ctx, userU)
	require.NoError(t, err)

	assert.Equal(t, []string{"MANAGER", "USER"}, snapshot.ProfileCodes(), "ordered by level")
	assert.Equal(t, map[string][]string{
		"TASK": {"CREATE", "DELETE", "READ"},
	}, snapshot.Permissions)
	assert.True(t, snapshot.Can("TASK", "DELETE"))
	assert.False(t, snapshot.Can("QUOTE", "UPDATE"))
	assert.Equal(t, []string{"TASK"}, snapshot.ResourcesWith("READ"))
}

// The snapshot keeps the last profile's value per field while
// GetFieldPermission keeps the most restrictive one.
func TestResolver_SnapshotOverwriteDiffersFromFieldResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// MANAGER (level 10) is processed before USER (level 100)
	f.field(t, f.manager, "TASK", "amount", FieldHidden)
	f.field(t, f.user, "TASK", "amount", FieldRead)
	f.field(t, f.user, "TASK", "title", FieldEdit)
	f.assign(t, userU, f.manager, true)
	f.assign(t, userU, f.user, true)

	overwrite := NewResolver(f.store, DefaultResolverOptions(), nil)

	snapshot, err := overwrite.GetUserPermissions(ctx, userU)
	require.NoError(t, err)
	assert.Equal(t, FieldRead, snapshot.FieldPermissions["TASK"]["amount"])
	assert.Equal(t, FieldEdit, snapshot.FieldPermissions["TASK"]["title"])

	access, err := overwrite.GetFieldPermission(ctx, userU, "TASK", "amount")
	require.NoError(t, err)
	assert.Equal(t, FieldHidden, access)

	opts := DefaultResolverOptions()
	opts.SnapshotFieldMerge = MergeRestrictive
	restrictive := NewResolver(f.store, opts, nil)

	snapshot, err = restrictive.GetUserPermissions(ctx, userU)
	require.NoError(t, err)
	assert.Equal(t, FieldHidden, snapshot.FieldPermissions["TASK"]["amount"])
}

func TestResolver_HasAnyProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.assign(t, userU, f.manager, true)
	f.assign(t, userU, f.admin, false)

	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)

	tests := []struct {
		codes []string
		want  bool
	}{
		{[]string{"MANAGER"}, true},
		{[]string{"manager"}, true},
		{[]string{"ADMIN", "USER"}, false},
		{[]string{"ADMIN", "MANAGER"}, true},
		{nil, false},
	}
	for _, tt := range tests {
		got, err := resolver.HasAnyProfile(ctx, userU, tt.codes...)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v", tt.codes)
	}
}

func TestResolver_IsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)

	f.assign(t, userU, f.admin, false)
	isAdmin, err := resolver.IsAdmin(ctx, userU)
	require.NoError(t, err)
	assert.False(t, isAdmin, "inactive assignment")

	f.assign(t, userU, f.admin, true)
	isAdmin, err = resolver.IsAdmin(ctx, userU)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	require.NoError(t, f.ledger.RemoveProfileFromUser(ctx, userU, f.admin.ID))
	isAdmin, err = resolver.IsAdmin(ctx, userU)
	require.NoError(t, err)
	assert.False(t, isAdmin, "removal is visible on the next call")
}

func TestResolver_Policy(t *testing.T) {
	f := newFixture(t)
	f.grant(t, f.user, "QUOTE", "READ", true)
	f.field(t, f.user, "QUOTE", "total", FieldRead)
	f.assign(t, userU, f.user, true)

	var policy Policy = NewResolver(f.store, DefaultResolverOptions(), nil)

	ok, err := policy.CanPerform(context.Background(), userU, "QUOTE", "READ")
	require.NoError(t, err)
	assert.True(t, ok)

	access, err := policy.FieldAccess(context.Background(), userU, "QUOTE", "total")
	require.NoError(t, err)
	assert.Equal(t, FieldRead, access)
}

func TestResolver_Metrics(t *testing.T) {
	f := newFixture(t)
	f.grant(t, f.user, "TASK", "READ", true)
	f.assign(t, userU, f.user, true)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewResolver(f.store, DefaultResolverOptions(), metrics)

	_, err := resolver.HasPermission(context.Background(), userU, "TASK", "READ")
	require.NoError(t, err)
	_, err = resolver.HasPermission(context.Background(), userU, "TASK", "DELETE")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PermissionChecksTotal.WithLabelValues("resource", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PermissionChecksTotal.WithLabelValues("resource", "deny")))
}

type failingRepo struct {
	Repository
	err error
}

func (r failingRepo) ListActiveProfiles(context.Context, int64) ([]Profile, error) {
	return nil, r.err
}

func TestResolver_StoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	resolver := NewResolver(failingRepo{err: boom}, DefaultResolverOptions(), nil)
	ctx := context.Background()

	_, err := resolver.HasPermission(ctx, userU, "TASK", "READ")
	assert.ErrorIs(t, err, boom)

	_, err = resolver.GetFieldPermission(ctx, userU, "TASK", "amount")
	assert.ErrorIs(t, err, boom)

	_, err = resolver.GetUserPermissions(ctx, userU)
	assert.ErrorIs(t, err, boom)

	_, err = resolver.IsAdmin(ctx, userU)
	assert.ErrorIs(t, err, boom)
}

func TestNewResolver_FillsDefaults(t *testing.T) {
	resolver := NewResolver(nil, ResolverOptions{}, nil)
	assert.Equal(t, DefaultResolverOptions(), resolver.Options())
}
