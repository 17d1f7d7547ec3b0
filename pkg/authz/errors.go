package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrAssignmentNotFound = errors.New("profile assignment not found")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrOperationNotFound  = errors.New("operation not found")
	ErrGrantNotFound      = errors.New("permission grant not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrProfileReferenced  = errors.New("profile is still referenced")
	ErrProfileCodeTaken   = errors.New("profile code already exists")
	ErrCodeTaken          = errors.New("code already exists")
	ErrInvalidFieldAccess = errors.New("invalid field permission type")
	ErrInvalidProfile     = errors.New("invalid profile")
	ErrInvalidInput       = errors.New("invalid input")
)

// ProfileInUseError is returned when deleting a profile that assignments
// still reference, whether those assignments are active or not.
type ProfileInUseError struct {
	ProfileID   int64
	Code        string
	Assignments int64
}

func (e *ProfileInUseError) Error() string {
	return fmt.Sprintf("profile %s (id %d) is referenced by %d assignment(s)", e.Code, e.ProfileID, e.Assignments)
}

// IsProfileInUse reports whether err carries a *ProfileInUseError
func IsProfileInUse(err error) bool {
	var inUse *ProfileInUseError
	return errors.As(err, &inUse)
}

// isUniqueViolation recognises duplicate key errors from postgres and sqlite
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation recognises referential integrity errors from postgres and sqlite
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsNotFound reports whether err is one of the not-found errors of this package
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrOperationNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsValidation reports whether err was caused by bad caller input
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidProfile) ||
		errors.Is(err, ErrInvalidFieldAccess) ||
		errors.Is(err, ErrInvalidInput)
}

// IsConflict reports whether err is a duplicate code or a blocked delete
func IsConflict(err error) bool {
	return errors.Is(err, ErrProfileCodeTaken) ||
		errors.Is(err, ErrCodeTaken) ||
		errors.Is(err, ErrProfileReferenced) ||
		IsProfileInUse(err)
}
