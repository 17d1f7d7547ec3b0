package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/workdesk/accessd/pkg/observability"
)

// Catalog administers profiles, resources, operations and the grants that
// tie them together
type Catalog struct {
	repo     Repository
	versions VersionBumper
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewCatalog creates a catalog service. versions, metrics and logger may be nil.
func NewCatalog(repo Repository, versions VersionBumper, metrics *observability.Metrics, logger *observability.Logger) *Catalog {
	if versions == nil {
		versions = nopBumper{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Catalog{repo: repo, versions: versions, metrics: metrics, logger: logger}
}

// ProfileInput carries the writable fields of a profile
type ProfileInput struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
	Active      *bool  `json:"active,omitempty"`
}

func (in ProfileInput) validate() error {
	if NormalizeCode(in.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidProfile)
	}
	if strings.ContainsAny(in.Code, " \t:") {
		return fmt.Errorf("%w: code must not contain spaces or colons", ErrInvalidProfile)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if in.Level < 0 {
		return fmt.Errorf("%w: level must not be negative", ErrInvalidProfile)
	}
	return nil
}

// FindAllProfiles lists profiles ordered by level
func (c *Catalog) FindAllProfiles(ctx context.Context) ([]Profile, error) {
	return c.repo.ListProfiles(ctx)
}

// FindProfileByID returns one profile
func (c *Catalog) FindProfileByID(ctx context.Context, id int64) (*Profile, error) {
	return c.repo.GetProfile(ctx, id)
}

// FindProfileByCode returns one profile by code
func (c *Catalog) FindProfileByCode(ctx context.Context, code string) (*Profile, error) {
	return c.repo.GetProfileByCode(ctx, NormalizeCode(code))
}

// CreateProfile validates and stores a new profile. Profiles are active unless
// the input says otherwise.
func (c *Catalog) CreateProfile(ctx context.Context, in ProfileInput) (*Profile, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	profile := &Profile{
		Code:        NormalizeCode(in.Code),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Level:       in.Level,
		Active:      in.Active == nil || *in.Active,
	}
	if err := c.repo.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateProfile replaces the writable fields of a profile. Holders of the
// profile get their permission version bumped because deactivating a profile
// changes what they can do.
func (c *Catalog) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (*Profile, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	profile, err := c.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	profile.Code = NormalizeCode(in.Code)
	profile.Name = strings.TrimSpace(in.Name)
	profile.Description = in.Description
	profile.Level = in.Level
	if in.Active != nil {
		profile.Active = *in.Active
	}

	if err := c.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}

	c.bumpHolders(ctx, profile.ID)
	return profile, nil
}

// DeleteProfile removes a profile that no assignment references. Any
// assignment, active or inactive, blocks the delete with *ProfileInUseError.
func (c *Catalog) DeleteProfile(ctx context.Context, id int64) error {
	profile, err := c.repo.GetProfile(ctx, id)
	if err != nil {
		return err
	}

	count, err := c.repo.CountProfileAssignments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &ProfileInUseError{ProfileID: id, Code: profile.Code, Assignments: count}
	}

	// an assignment inserted after the count trips the foreign key instead
	err = c.repo.DeleteProfile(ctx, id)
	if errors.Is(err, ErrProfileReferenced) {
		if count, countErr := c.repo.CountProfileAssignments(ctx, id); countErr == nil && count > 0 {
			return &ProfileInUseError{ProfileID: id, Code: profile.Code, Assignments: count}
		}
	}
	return err
}

// CreateResource registers a resource code
func (c *Catalog) CreateResource(ctx context.Context, code, name, description string) (*Resource, error) {
	resource := &Resource{Code: NormalizeCode(code), Name: name, Description: description}
	if resource.Code == "" || strings.ContainsAny(resource.Code, " \t:") {
		return nil, fmt.Errorf("%w: resource code is required and must not contain spaces or colons", ErrInvalidInput)
	}
	if resource.Name == "" {
		resource.Name = resource.Code
	}
	if err := c.repo.CreateResource(ctx, resource); err != nil {
		return nil, err
	}
	return resource, nil
}

// ListResources lists registered resources
func (c *Catalog) ListResources(ctx context.Context) ([]Resource, error) {
	return c.repo.ListResources(ctx)
}

// CreateOperation registers an operation code
func (c *Catalog) CreateOperation(ctx context.Context, code, name, description string) (*Operation, error) {
	operation := &Operation{Code: NormalizeCode(code), Name: name, Description: description}
	if operation.Code == "" || strings.ContainsAny(operation.Code, " \t:") {
		return nil, fmt.Errorf("%w: operation code is required and must not contain spaces or colons", ErrInvalidInput)
	}
	if operation.Name == "" {
		operation.Name = operation.Code
	}
	if err := c.repo.CreateOperation(ctx, operation); err != nil {
		return nil, err
	}
	return operation, nil
}

// ListOperations lists registered operations
func (c *Catalog) ListOperations(ctx context.Context) ([]Operation, error) {
	return c.repo.ListOperations(ctx)
}

func (c *Catalog) lookupGrantTarget(ctx context.Context, profileID int64, resourceCode string) (*Profile, *Resource, error) {
	profile, err := c.repo.GetProfile(ctx, profileID)
	if err != nil {
		return nil, nil, err
	}
	resource, err := c.repo.GetResourceByCode(ctx, NormalizeCode(resourceCode))
	if err != nil {
		return nil, nil, err
	}
	return profile, resource, nil
}

// SetResourcePermission grants (or explicitly denies) operation on resource to a profile
func (c *Catalog) SetResourcePermission(ctx context.Context, profileID int64, resourceCode, operationCode string, granted bool) error {
	profile, resource, err := c.lookupGrantTarget(ctx, profileID, resourceCode)
	if err != nil {
		return err
	}
	operation, err := c.repo.GetOperationByCode(ctx, NormalizeCode(operationCode))
	if err != nil {
		return err
	}

	if err := c.repo.UpsertResourcePermission(ctx, profile.ID, resource.ID, operation.ID, granted); err != nil {
		return err
	}

	c.metrics.IncLedgerChange("grant_resource")
	c.bumpHolders(ctx, profile.ID)
	return nil
}

// RevokeResourcePermission deletes a resource grant row, falling back to implicit deny
func (c *Catalog) RevokeResourcePermission(ctx context.Context, profileID int64, resourceCode, operationCode string) error {
	profile, resource, err := c.lookupGrantTarget(ctx, profileID, resourceCode)
	if err != nil {
		return err
	}
	operation, err := c.repo.GetOperationByCode(ctx, NormalizeCode(operationCode))
	if err != nil {
		return err
	}

	existed, err := c.repo.DeleteResourcePermission(ctx, profile.ID, resource.ID, operation.ID)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: %s %s:%s", ErrGrantNotFound, profile.Code, resource.Code, operation.Code)
	}

	c.metrics.IncLedgerChange("revoke_resource")
	c.bumpHolders(ctx, profile.ID)
	return nil
}

// SetFieldPermission sets a profile's access level on one field
func (c *Catalog) SetFieldPermission(ctx context.Context, profileID int64, resourceCode, fieldName string, access FieldAccess) error {
	if !access.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFieldAccess, access)
	}
	if strings.TrimSpace(fieldName) == "" {
		return fmt.Errorf("%w: field name is required", ErrInvalidInput)
	}

	profile, resource, err := c.lookupGrantTarget(ctx, profileID, resourceCode)
	if err != nil {
		return err
	}

	if err := c.repo.UpsertFieldPermission(ctx, profile.ID, resource.ID, fieldName, access); err != nil {
		return err
	}

	c.metrics.IncLedgerChange("grant_field")
	c.bumpHolders(ctx, profile.ID)
	return nil
}

// ClearFieldPermission deletes a field row, falling back to the field default
func (c *Catalog) ClearFieldPermission(ctx context.Context, profileID int64, resourceCode, fieldName string) error {
	profile, resource, err := c.lookupGrantTarget(ctx, profileID, resourceCode)
	if err != nil {
		return err
	}

	existed, err := c.repo.DeleteFieldPermission(ctx, profile.ID, resource.ID, fieldName)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: %s %s.%s", ErrGrantNotFound, profile.Code, resource.Code, fieldName)
	}

	c.metrics.IncLedgerChange("clear_field")
	c.bumpHolders(ctx, profile.ID)
	return nil
}

// ListProfilePermissions returns every grant row of a profile
func (c *Catalog) ListProfilePermissions(ctx context.Context, profileID int64) (*ProfileGrants, error) {
	profile, err := c.repo.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	filter := PermissionFilter{ProfileIDs: []int64{profileID}}
	resources, err := c.repo.ListResourcePermissions(ctx, filter)
	if err != nil {
		return nil, err
	}
	fields, err := c.repo.ListFieldPermissions(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &ProfileGrants{Profile: *profile, Resources: resources, Fields: fields}, nil
}

func (c *Catalog) bumpHolders(ctx context.Context, profileID int64) {
	holders, err := c.repo.ListProfileHolders(ctx, profileID)
	if err != nil {
		c.logger.WithError(err).WithField("profile_id", profileID).Error("failed to list profile holders for version bump")
		return
	}
	for _, userID := range holders {
		if _, err := c.versions.Bump(ctx, userID); err != nil {
			c.logger.WithError(err).WithField("target_user_id", userID).Error("failed to bump permission version")
		}
	}
}

// ApplySeed inserts the catalog entries and grants of seed that do not exist
// yet. Existing rows are left alone so that changes made through the API
// survive restarts.
func (c *Catalog) ApplySeed(ctx context.Context, seed *Seed) (*SeedReport, error) {
	report := &SeedReport{}

	for _, r := range seed.Resources {
		if _, err := c.repo.GetResourceByCode(ctx, NormalizeCode(r.Code)); err == nil {
			continue
		} else if !errors.Is(err, ErrResourceNotFound) {
			return nil, err
		}
		if _, err := c.CreateResource(ctx, r.Code, r.Name, r.Description); err != nil {
			return nil, fmt.Errorf("failed to seed resource %s: %w", r.Code, err)
		}
		report.Resources++
	}

	for _, o := range seed.Operations {
		if _, err := c.repo.GetOperationByCode(ctx, NormalizeCode(o.Code)); err == nil {
			continue
		} else if !errors.Is(err, ErrOperationNotFound) {
			return nil, err
		}
		if _, err := c.CreateOperation(ctx, o.Code, o.Name, o.Description); err != nil {
			return nil, fmt.Errorf("failed to seed operation %s: %w", o.Code, err)
		}
		report.Operations++
	}

	for _, sp := range seed.Profiles {
		profile, err := c.repo.GetProfileByCode(ctx, NormalizeCode(sp.Code))
		if errors.Is(err, ErrProfileNotFound) {
			profile, err = c.CreateProfile(ctx, ProfileInput{
				Code:        sp.Code,
				Name:        sp.Name,
				Description: sp.Description,
				Level:       sp.Level,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to seed profile %s: %w", sp.Code, err)
			}
			report.Profiles++
		} else if err != nil {
			return nil, err
		}

		existing, err := c.ListProfilePermissions(ctx, profile.ID)
		if err != nil {
			return nil, err
		}
		haveResource := make(map[string]bool, len(existing.Resources))
		for _, g := range existing.Resources {
			haveResource[g.ResourceCode+":"+g.OperationCode] = true
		}
		haveField := make(map[string]bool, len(existing.Fields))
		for _, g := range existing.Fields {
			haveField[g.ResourceCode+"."+g.FieldName] = true
		}

		for resource, operations := range sp.Permissions {
			for _, op := range operations {
				key := NormalizeCode(resource) + ":" + NormalizeCode(op)
				if haveResource[key] {
					continue
				}
				if err := c.SetResourcePermission(ctx, profile.ID, resource, op, true); err != nil {
					return nil, fmt.Errorf("failed to seed grant %s for %s: %w", key, profile.Code, err)
				}
				report.Grants++
			}
		}

		for resource, fields := range sp.Fields {
			for field, raw := range fields {
				key := NormalizeCode(resource) + "." + field
				if haveField[key] {
					continue
				}
				access, err := ParseFieldAccess(raw)
				if err != nil {
					return nil, fmt.Errorf("failed to seed field %s for %s: %w", key, profile.Code, err)
				}
				if err := c.SetFieldPermission(ctx, profile.ID, resource, field, access); err != nil {
					return nil, fmt.Errorf("failed to seed field %s for %s: %w", key, profile.Code, err)
				}
				report.Grants++
			}
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"resources":  report.Resources,
		"operations": report.Operations,
		"profiles":   report.Profiles,
		"grants":     report.Grants,
	}).Info("catalog seed applied")

	return report, nil
}
