package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store handles profile and permission persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new permission store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

const profileColumns = `id, code, name, description, level, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Name,
		&p.Description,
		&p.Level,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) queryProfiles(ctx context.Context, query string, args ...interface{}) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// ListProfiles returns every profile ordered by level
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.queryProfiles(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY level ASC, id ASC`)
}

// GetProfile retrieves a profile by ID
func (s *Store) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrProfileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetProfileByCode retrieves a profile by its unique code
func (s *Store) GetProfileByCode(ctx context.Context, code string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE code = $1`, code)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// CreateProfile inserts a profile and fills in its ID and timestamps
func (s *Store) CreateProfile(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO profiles (code, name, description, level, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		profile.Code,
		profile.Name,
		profile.Description,
		profile.Level,
		profile.Active,
		now,
		now,
	).Scan(&profile.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrProfileCodeTaken, profile.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	profile.CreatedAt = now
	profile.UpdatedAt = now
	return nil
}

// UpdateProfile overwrites the mutable columns of a profile
func (s *Store) UpdateProfile(ctx context.Context, profile *Profile) error {
	query := `
		UPDATE profiles
		SET code = $1, name = $2, description = $3, level = $4, active = $5, updated_at = $6
		WHERE id = $7
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		profile.Code,
		profile.Name,
		profile.Description,
		profile.Level,
		profile.Active,
		now,
		profile.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrProfileCodeTaken, profile.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrProfileNotFound, profile.ID)
	}

	profile.UpdatedAt = now
	return nil
}

// DeleteProfile removes a profile row. Callers check assignments first.
func (s *Store) DeleteProfile(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %d", ErrProfileReferenced, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrProfileNotFound, id)
	}
	return nil
}

// CountProfileAssignments counts assignments of a profile, active or not
func (s *Store) CountProfileAssignments(ctx context.Context, profileID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profile_assignments WHERE profile_id = $1`, profileID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count profile assignments: %w", err)
	}
	return count, nil
}

// UserExists reports whether userID names a row in the users table
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return count > 0, nil
}

// UpsertAssignment creates the (user, profile) link or updates its active flag
func (s *Store) UpsertAssignment(ctx context.Context, userID, profileID int64, active bool) (*ProfileAssignment, error) {
	query := `
		INSERT INTO profile_assignments (user_id, profile_id, active, assigned_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, profile_id)
		DO UPDATE SET active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, userID, profileID, active, now); err != nil {
		return nil, fmt.Errorf("failed to upsert profile assignment: %w", err)
	}

	var a ProfileAssignment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, profile_id, active, assigned_at, updated_at
		FROM profile_assignments
		WHERE user_id = $1 AND profile_id = $2
	`, userID, profileID).Scan(
		&a.ID,
		&a.UserID,
		&a.ProfileID,
		&a.Active,
		&a.AssignedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile assignment: %w", err)
	}
	return &a, nil
}

// execAffected runs a write and returns how many rows it touched
func (s *Store) execAffected(ctx context.Context, action, query string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", action, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// DeleteAssignment hard-deletes one assignment and reports whether it existed
func (s *Store) DeleteAssignment(ctx context.Context, userID, profileID int64) (bool, error) {
	n, err := s.execAffected(ctx, "delete profile assignment",
		`DELETE FROM profile_assignments WHERE user_id = $1 AND profile_id = $2`, userID, profileID)
	return n > 0, err
}

// DeleteUserAssignments hard-deletes every assignment of a user
func (s *Store) DeleteUserAssignments(ctx context.Context, userID int64) (int64, error) {
	return s.execAffected(ctx, "delete user assignments",
		`DELETE FROM profile_assignments WHERE user_id = $1`, userID)
}

// DeactivateAssignment marks one assignment inactive and reports whether it existed
func (s *Store) DeactivateAssignment(ctx context.Context, userID, profileID int64) (bool, error) {
	n, err := s.execAffected(ctx, "deactivate profile assignment",
		`UPDATE profile_assignments SET active = FALSE, updated_at = $1 WHERE user_id = $2 AND profile_id = $3`,
		time.Now().UTC(), userID, profileID)
	return n > 0, err
}

// DeactivateUserAssignments marks every assignment of a user inactive
func (s *Store) DeactivateUserAssignments(ctx context.Context, userID int64) (int64, error) {
	return s.execAffected(ctx, "deactivate user assignments",
		`UPDATE profile_assignments SET active = FALSE, updated_at = $1 WHERE user_id = $2 AND active = TRUE`,
		time.Now().UTC(), userID)
}

// ListUserProfiles returns every assignment of a user with its profile
func (s *Store) ListUserProfiles(ctx context.Context, userID int64) ([]UserProfile, error) {
	query := `
		SELECT pa.id, pa.user_id, pa.active, pa.assigned_at,
		       p.id, p.code, p.name, p.description, p.level, p.active, p.created_at, p.updated_at
		FROM profile_assignments pa
		JOIN profiles p ON p.id = pa.profile_id
		WHERE pa.user_id = $1
		ORDER BY p.level ASC, p.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	result := make([]UserProfile, 0)
	for rows.Next() {
		var up UserProfile
		if err := rows.Scan(
			&up.AssignmentID,
			&up.UserID,
			&up.Active,
			&up.AssignedAt,
			&up.Profile.ID,
			&up.Profile.Code,
			&up.Profile.Name,
			&up.Profile.Description,
			&up.Profile.Level,
			&up.Profile.Active,
			&up.Profile.CreatedAt,
			&up.Profile.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		result = append(result, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user profiles: %w", err)
	}
	return result, nil
}

// ListActiveProfiles returns the profiles that take part in resolution for a
// user: assignment active and profile active, ordered by level then id.
func (s *Store) ListActiveProfiles(ctx context.Context, userID int64) ([]Profile, error) {
	query := `
		SELECT p.id, p.code, p.name, p.description, p.level, p.active, p.created_at, p.updated_at
		FROM profiles p
		JOIN profile_assignments pa ON pa.profile_id = p.id
		WHERE pa.user_id = $1 AND pa.active = TRUE AND p.active = TRUE
		ORDER BY p.level ASC, p.id ASC
	`
	return s.queryProfiles(ctx, query, userID)
}

// ListProfileHolders returns the users holding an active assignment of a profile
func (s *Store) ListProfileHolders(ctx context.Context, profileID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM profile_assignments
		WHERE profile_id = $1 AND active = TRUE
		ORDER BY user_id
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile holders: %w", err)
	}
	defer rows.Close()

	userIDs := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan profile holder: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// CreateResource inserts a resource
func (s *Store) CreateResource(ctx context.Context, resource *Resource) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO resources (code, name, description) VALUES ($1, $2, $3) RETURNING id`,
		resource.Code, resource.Name, resource.Description,
	).Scan(&resource.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: resource %s", ErrCodeTaken, resource.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// ListResources returns every resource ordered by code
func (s *Store) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, description FROM resources ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	resources := make([]Resource, 0)
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// GetResourceByCode retrieves a resource by code
func (s *Store) GetResourceByCode(ctx context.Context, code string) (*Resource, error) {
	var r Resource
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, description FROM resources WHERE code = $1`, code,
	).Scan(&r.ID, &r.Code, &r.Name, &r.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &r, nil
}

// CreateOperation inserts an operation
func (s *Store) CreateOperation(ctx context.Context, operation *Operation) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO operations (code, name, description) VALUES ($1, $2, $3) RETURNING id`,
		operation.Code, operation.Name, operation.Description,
	).Scan(&operation.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: operation %s", ErrCodeTaken, operation.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

// ListOperations returns every operation ordered by code
func (s *Store) ListOperations(ctx context.Context) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, description FROM operations ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	operations := make([]Operation, 0)
	for rows.Next() {
		var o Operation
		if err := rows.Scan(&o.ID, &o.Code, &o.Name, &o.Description); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		operations = append(operations, o)
	}
	return operations, rows.Err()
}

// GetOperationByCode retrieves an operation by code
func (s *Store) GetOperationByCode(ctx context.Context, code string) (*Operation, error) {
	var o Operation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, description FROM operations WHERE code = $1`, code,
	).Scan(&o.ID, &o.Code, &o.Name, &o.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return &o, nil
}

// UpsertResourcePermission sets the granted flag of a resource grant
func (s *Store) UpsertResourcePermission(ctx context.Context, profileID, resourceID, operationID int64, granted bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_permissions (profile_id, resource_id, operation_id, granted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile_id, resource_id, operation_id)
		DO UPDATE SET granted = EXCLUDED.granted
	`, profileID, resourceID, operationID, granted)
	if err != nil {
		return fmt.Errorf("failed to upsert resource permission: %w", err)
	}
	return nil
}

// DeleteResourcePermission removes a resource grant row
func (s *Store) DeleteResourcePermission(ctx context.Context, profileID, resourceID, operationID int64) (bool, error) {
	n, err := s.execAffected(ctx, "delete resource permission", `
		DELETE FROM resource_permissions
		WHERE profile_id = $1 AND resource_id = $2 AND operation_id = $3
	`, profileID, resourceID, operationID)
	return n > 0, err
}

// UpsertFieldPermission sets the access level of a field grant
func (s *Store) UpsertFieldPermission(ctx context.Context, profileID, resourceID int64, fieldName string, access FieldAccess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_permissions (profile_id, resource_id, field_name, permission_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile_id, resource_id, field_name)
		DO UPDATE SET permission_type = EXCLUDED.permission_type
	`, profileID, resourceID, fieldName, string(access))
	if err != nil {
		return fmt.Errorf("failed to upsert field permission: %w", err)
	}
	return nil
}

// DeleteFieldPermission removes a field grant row
func (s *Store) DeleteFieldPermission(ctx context.Context, profileID, resourceID int64, fieldName string) (bool, error) {
	n, err := s.execAffected(ctx, "delete field permission", `
		DELETE FROM field_permissions
		WHERE profile_id = $1 AND resource_id = $2 AND field_name = $3
	`, profileID, resourceID, fieldName)
	return n > 0, err
}

// grantQuery accumulates WHERE clauses with sequential $n placeholders
type grantQuery struct {
	clauses []string
	args    []interface{}
}

func (q *grantQuery) next(value interface{}) string {
	q.args = append(q.args, value)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *grantQuery) inProfiles(column string, ids []int64) {
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = q.next(id)
	}
	q.clauses = append(q.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
}

func (q *grantQuery) equals(column, value string) {
	if value == "" {
		return
	}
	q.clauses = append(q.clauses, fmt.Sprintf("%s = %s", column, q.next(value)))
}

func (q *grantQuery) where() string {
	return "WHERE " + strings.Join(q.clauses, " AND ")
}

// ListResourcePermissions returns resource grant rows matching filter
func (s *Store) ListResourcePermissions(ctx context.Context, filter PermissionFilter) ([]ResourcePermission, error) {
	if len(filter.ProfileIDs) == 0 {
		return []ResourcePermission{}, nil
	}

	q := &grantQuery{}
	q.inProfiles("rp.profile_id", filter.ProfileIDs)
	q.equals("r.code", filter.ResourceCode)
	q.equals("o.code", filter.OperationCode)

	query := `
		SELECT rp.id, rp.profile_id, r.code, o.code, rp.granted
		FROM resource_permissions rp
		JOIN resources r ON r.id = rp.resource_id
		JOIN operations o ON o.id = rp.operation_id
		` + q.where() + `
		ORDER BY rp.profile_id, r.code, o.code
	`

	rows, err := s.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resource permissions: %w", err)
	}
	defer rows.Close()

	grants := make([]ResourcePermission, 0)
	for rows.Next() {
		var g ResourcePermission
		if err := rows.Scan(&g.ID, &g.ProfileID, &g.ResourceCode, &g.OperationCode, &g.Granted); err != nil {
			return nil, fmt.Errorf("failed to scan resource permission: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resource permissions: %w", err)
	}
	return grants, nil
}

// ListFieldPermissions returns field grant rows matching filter
func (s *Store) ListFieldPermissions(ctx context.Context, filter PermissionFilter) ([]FieldPermission, error) {
	if len(filter.ProfileIDs) == 0 {
		return []FieldPermission{}, nil
	}

	q := &grantQuery{}
	q.inProfiles("fp.profile_id", filter.ProfileIDs)
	q.equals("r.code", filter.ResourceCode)
	q.equals("fp.field_name", filter.FieldName)

	query := `
		SELECT fp.id, fp.profile_id, r.code, fp.field_name, fp.permission_type
		FROM field_permissions fp
		JOIN resources r ON r.id = fp.resource_id
		` + q.where() + `
		ORDER BY fp.profile_id, r.code, fp.field_name
	`

	rows, err := s.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query field permissions: %w", err)
	}
	defer rows.Close()

	grants := make([]FieldPermission, 0)
	for rows.Next() {
		var g FieldPermission
		var access string
		if err := rows.Scan(&g.ID, &g.ProfileID, &g.ResourceCode, &g.FieldName, &access); err != nil {
			return nil, fmt.Errorf("failed to scan field permission: %w", err)
		}
		g.Access = FieldAccess(access)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate field permissions: %w", err)
	}
	return grants, nil
}
