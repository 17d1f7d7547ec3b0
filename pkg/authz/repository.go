package authz

import "context"

// PermissionFilter narrows grant queries. ProfileIDs is required; an empty
// list matches nothing. Empty strings leave that column unfiltered.
type PermissionFilter struct {
	ProfileIDs    []int64
	ResourceCode  string
	OperationCode string
	FieldName     string
}

// Repository is the persistence boundary of the permission engine.
// Store implements it over database/sql.
type Repository interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	GetProfileByCode(ctx context.Context, code string) (*Profile, error)
	CreateProfile(ctx context.Context, profile *Profile) error
	UpdateProfile(ctx context.Context, profile *Profile) error
	DeleteProfile(ctx context.Context, id int64) error
	CountProfileAssignments(ctx context.Context, profileID int64) (int64, error)

	UserExists(ctx context.Context, userID int64) (bool, error)
	UpsertAssignment(ctx context.Context, userID, profileID int64, active bool) (*ProfileAssignment, error)
	DeleteAssignment(ctx context.Context, userID, profileID int64) (bool, error)
	DeleteUserAssignments(ctx context.Context, userID int64) (int64, error)
	DeactivateAssignment(ctx context.Context, userID, profileID int64) (bool, error)
	DeactivateUserAssignments(ctx context.Context, userID int64) (int64, error)
	ListUserProfiles(ctx context.Context, userID int64) ([]UserProfile, error)
	ListActiveProfiles(ctx context.Context, userID int64) ([]Profile, error)
	ListProfileHolders(ctx context.Context, profileID int64) ([]int64, error)

	CreateResource(ctx context.Context, resource *Resource) error
	ListResources(ctx context.Context) ([]Resource, error)
	GetResourceByCode(ctx context.Context, code string) (*Resource, error)
	CreateOperation(ctx context.Context, operation *Operation) error
	ListOperations(ctx context.Context) ([]Operation, error)
	GetOperationByCode(ctx context.Context, code string) (*Operation, error)

	UpsertResourcePermission(ctx context.Context, profileID, resourceID, operationID int64, granted bool) error
	DeleteResourcePermission(ctx context.Context, profileID, resourceID, operationID int64) (bool, error)
	UpsertFieldPermission(ctx context.Context, profileID, resourceID int64, fieldName string, access FieldAccess) error
	DeleteFieldPermission(ctx context.Context, profileID, resourceID int64, fieldName string) (bool, error)
	ListResourcePermissions(ctx context.Context, filter PermissionFilter) ([]ResourcePermission, error)
	ListFieldPermissions(ctx context.Context, filter PermissionFilter) ([]FieldPermission, error)
}
