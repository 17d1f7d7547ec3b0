package authz

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_CreateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.catalog.CreateProfile(ctx, ProfileInput{Code: " finance ", Name: "Finance", Level: 20})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "FINANCE", p.Code)
	assert.True(t, p.Active)

	got, err := f.catalog.FindProfileByCode(ctx, "finance")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.catalog.CreateProfile(ctx, ProfileInput{Code: "FINANCE", Name: "Other"})
	assert.ErrorIs(t, err, ErrProfileCodeTaken)
}

func TestCatalog_CreateProfileValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input ProfileInput
	}{
		{"missing code", ProfileInput{Name: "x"}},
		{"code with space", ProfileInput{Code: "A B", Name: "x"}},
		{"code with colon", ProfileInput{Code: "A:B", Name: "x"}},
		{"missing name", ProfileInput{Code: "X"}},
		{"negative level", ProfileInput{Code: "X", Name: "x", Level: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.catalog.CreateProfile(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}

func TestCatalog_FindAllProfilesOrderedByLevel(t *testing.T) {
	f := newFixture(t)
	f.createProfile(t, "AUDITOR", 5)

	profiles, err := f.catalog.FindAllProfiles(context.Background())
	require.NoError(t, err)

	codes := make([]string, len(profiles))
	for i, p := range profiles {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"ADMIN", "AUDITOR", "MANAGER", "USER"}, codes)
}

func TestCatalog_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.assign(t, userU, f.manager, true)
	f.assign(t, 7, f.manager, false)
	f.bumper.reset()

	inactive := false
	updated, err := f.catalog.UpdateProfile(ctx, f.manager.ID, ProfileInput{
		Code: "MANAGER", Name: "Team manager", Description: "runs a team", Level: 15, Active: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Team manager", updated.Name)
	assert.False(t, updated.Active)

	got, err := f.catalog.FindProfileByID(ctx, f.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Level)
	assert.Equal(t, "runs a team", got.Description)
	assert.False(t, got.Active)

	assert.Equal(t, []int64{userU}, f.bumper.bumps, "only active holders are bumped")

	_, err = f.catalog.UpdateProfile(ctx, 9999, ProfileInput{Code: "X", Name: "X"})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = f.catalog.UpdateProfile(ctx, f.manager.ID, ProfileInput{Code: "USER", Name: "dup"})
	assert.ErrorIs(t, err, ErrProfileCodeTaken)
}

func TestCatalog_UpdateProfileKeepsActiveWhenOmitted(t *testing.T) {
	f := newFixture(t)

	updated, err := f.catalog.UpdateProfile(context.Background(), f.user.ID, ProfileInput{Code: "USER", Name: "Users", Level: 100})
	require.NoError(t, err)
	assert.True(t, updated.Active)
}

func TestCatalog_DeleteProfile(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		inUse  bool
		others int64
	}{
		{
			name:  "no assignments",
			setup: func(t *testing.T, f *fixture) {},
		},
		{
			name: "active assignment blocks",
			setup: func(t *testing.T, f *fixture) {
				f.assign(t, userU, f.manager, true)
			},
			inUse:  true,
			others: 1,
		},
		{
			name: "inactive assignment blocks",
			setup: func(t *testing.T, f *fixture) {
				f.assign(t, userU, f.manager, false)
				f.assign(t, 7, f.manager, false)
			},
			inUse:  true,
			others: 2,
		},
		{
			name: "removed assignment no longer blocks",
			setup: func(t *testing.T, f *fixture) {
				f.assign(t, userU, f.manager, true)
				require.NoError(t, f.ledger.RemoveProfileFromUser(context.Background(), userU, f.manager.ID))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			tt.setup(t, f)

			err := f.catalog.DeleteProfile(ctx, f.manager.ID)
			if tt.inUse {
				require.Error(t, err)
				assert.True(t, IsProfileInUse(err))

				var inUse *ProfileInUseError
				require.ErrorAs(t, err, &inUse)
				assert.Equal(t, f.manager.ID, inUse.ProfileID)
				assert.Equal(t, "MANAGER", inUse.Code)
				assert.Equal(t, tt.others, inUse.Assignments)

				_, err = f.catalog.FindProfileByID(ctx, f.manager.ID)
				assert.NoError(t, err, "profile survives")
				return
			}

			require.NoError(t, err)
			_, err = f.catalog.FindProfileByID(ctx, f.manager.ID)
			assert.ErrorIs(t, err, ErrProfileNotFound)
		})
	}
}

// lateAssignRepo links a user to the profile after the assignment count and
// before the row delete runs.
type lateAssignRepo struct {
	*Store
	userID int64
}

func (r *lateAssignRepo) DeleteProfile(ctx context.Context, id int64) error {
	if _, err := r.Store.UpsertAssignment(ctx, r.userID, id, true); err != nil {
		return err
	}
	return r.Store.DeleteProfile(ctx, id)
}

func TestCatalog_DeleteProfileAssignedConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	catalog := NewCatalog(&lateAssignRepo{Store: f.store, userID: userU}, nil, nil, nil)

	err := catalog.DeleteProfile(ctx, f.manager.ID)
	require.Error(t, err)

	var inUse *ProfileInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, "MANAGER", inUse.Code)
	assert.Equal(t, int64(1), inUse.Assignments)
	assert.True(t, IsConflict(err))

	_, err = f.catalog.FindProfileByID(ctx, f.manager.ID)
	assert.NoError(t, err, "profile survives")
}

func TestCatalog_DeleteUnknownProfile(t *testing.T) {
	f := newFixture(t)
	err := f.catalog.DeleteProfile(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsProfileInUse(err))
}

func TestCatalog_ResourcesAndOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.catalog.CreateResource(ctx, "billing_period", "Billing period", "")
	require.NoError(t, err)
	assert.Equal(t, "BILLING_PERIOD", r.Code)

	_, err = f.catalog.CreateResource(ctx, "TASK", "", "")
	assert.ErrorIs(t, err, ErrCodeTaken)

	_, err = f.catalog.CreateResource(ctx, " ", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, IsValidation(err))

	resources, err := f.catalog.ListResources(ctx)
	require.NoError(t, err)
	assert.Len(t, resources, 4)
	assert.Equal(t, "BILLING_PERIOD", resources[0].Code)

	o, err := f.catalog.CreateOperation(ctx, "export", "", "")
	require.NoError(t, err)
	assert.Equal(t, "EXPORT", o.Name)

	_, err = f.catalog.CreateOperation(ctx, "delete", "", "")
	assert.ErrorIs(t, err, ErrCodeTaken)
	assert.True(t, IsConflict(err))

	_, err = f.catalog.CreateOperation(ctx, "re:ad", "", "")
	assert.True(t, IsValidation(err))

	operations, err := f.catalog.ListOperations(ctx)
	require.NoError(t, err)
	assert.Len(t, operations, 5)
}

func TestCatalog_Grants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.assign(t, userU, f.user, true)
	f.bumper.reset()

	require.NoError(t, f.catalog.SetResourcePermission(ctx, f.user.ID, "task", "read", true))
	require.NoError(t, f.catalog.SetResourcePermission(ctx, f.user.ID, "TASK", "READ", false))
	require.NoError(t, f.catalog.SetFieldPermission(ctx, f.user.ID, "TASK", "amount", FieldRead))
	require.NoError(t, f.catalog.SetFieldPermission(ctx, f.user.ID, "TASK", "amount", FieldHidden))

	grants, err := f.catalog.ListProfilePermissions(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "USER", grants.Profile.Code)
	require.Len(t, grants.Resources, 1)
	assert.Equal(t, "TASK", grants.Resources[0].ResourceCode)
	assert.Equal(t, "READ", grants.Resources[0].OperationCode)
	assert.False(t, grants.Resources[0].Granted, "upsert overwrites")
	require.Len(t, grants.Fields, 1)
	assert.Equal(t, FieldHidden, grants.Fields[0].Access)

	assert.Equal(t, []int64{userU, userU, userU, userU}, f.bumper.bumps)

	require.NoError(t, f.catalog.RevokeResourcePermission(ctx, f.user.ID, "TASK", "READ"))
	err = f.catalog.RevokeResourcePermission(ctx, f.user.ID, "TASK", "READ")
	assert.ErrorIs(t, err, ErrGrantNotFound)

	require.NoError(t, f.catalog.ClearFieldPermission(ctx, f.user.ID, "TASK", "amount"))
	err = f.catalog.ClearFieldPermission(ctx, f.user.ID, "TASK", "amount")
	assert.ErrorIs(t, err, ErrGrantNotFound)

	grants, err = f.catalog.ListProfilePermissions(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, grants.Resources)
	assert.Empty(t, grants.Fields)
}

func TestCatalog_GrantErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.catalog.SetResourcePermission(ctx, 9999, "TASK", "READ", true)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	err = f.catalog.SetResourcePermission(ctx, f.user.ID, "INVOICE", "READ", true)
	assert.ErrorIs(t, err, ErrResourceNotFound)

	err = f.catalog.SetResourcePermission(ctx, f.user.ID, "TASK", "APPROVE", true)
	assert.ErrorIs(t, err, ErrOperationNotFound)

	err = f.catalog.SetFieldPermission(ctx, f.user.ID, "TASK", "amount", FieldAccess("WRITE"))
	assert.ErrorIs(t, err, ErrInvalidFieldAccess)

	err = f.catalog.SetFieldPermission(ctx, f.user.ID, "TASK", "  ", FieldRead)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

const testSeed = `
resources:
  - code: TASK
  - code: invoice
    name: Invoice
operations:
  - code: READ
  - code: APPROVE
profiles:
  - code: ADMIN
    name: Administrator
    level: 1
    permissions:
      TASK: [READ, APPROVE]
      INVOICE: [READ]
  - code: CLERK
    name: Clerk
    level: 50
    permissions:
      invoice: [read]
    fields:
      INVOICE:
        amount: READ
        margin: hidden
`

func TestCatalog_ApplySeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed, err := LoadSeed(strings.NewReader(testSeed))
	require.NoError(t, err)

	report, err := f.catalog.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, &SeedReport{Resources: 1, Operations: 1, Profiles: 1, Grants: 6}, report)

	clerk, err := f.catalog.FindProfileByCode(ctx, "CLERK")
	require.NoError(t, err)
	grants, err := f.catalog.ListProfilePermissions(ctx, clerk.ID)
	require.NoError(t, err)
	assert.Len(t, grants.Resources, 1)
	assert.Len(t, grants.Fields, 2)

	// operator edits survive a second run
	require.NoError(t, f.catalog.SetFieldPermission(ctx, clerk.ID, "INVOICE", "amount", FieldEdit))

	report, err = f.catalog.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, &SeedReport{}, report)

	f.assign(t, userU, clerk, true)
	resolver := NewResolver(f.store, DefaultResolverOptions(), nil)
	access, err := resolver.GetFieldPermission(ctx, userU, "INVOICE", "amount")
	require.NoError(t, err)
	assert.Equal(t, FieldEdit, access)
}
