package authz

import (
	"context"
	"fmt"

	"github.com/workdesk/accessd/pkg/observability"
)

// VersionBumper advances a user's permission version after their effective
// permissions change. revocation.RedisStore implements it.
type VersionBumper interface {
	Bump(ctx context.Context, userID int64) (int64, error)
}

type nopBumper struct{}

func (nopBumper) Bump(context.Context, int64) (int64, error) { return 0, nil }

// Ledger manages which profiles a user holds
type Ledger struct {
	repo     Repository
	deletion DeletionPolicy
	versions VersionBumper
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// LedgerOptions configures a Ledger
type LedgerOptions struct {
	// AssignmentDeletion selects hard delete (default) or active=false on removal
	AssignmentDeletion DeletionPolicy
	Versions           VersionBumper
	Metrics            *observability.Metrics
	Logger             *observability.Logger
}

// NewLedger creates a new assignment ledger
func NewLedger(repo Repository, opts LedgerOptions) *Ledger {
	if opts.Versions == nil {
		opts.Versions = nopBumper{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Ledger{
		repo:     repo,
		deletion: opts.AssignmentDeletion,
		versions: opts.Versions,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// bump records a permission change for userID. The database is the source of
// truth, so a failed bump is logged rather than undoing the committed change.
func (l *Ledger) bump(ctx context.Context, userID int64) {
	if _, err := l.versions.Bump(ctx, userID); err != nil {
		l.logger.WithError(err).WithField("target_user_id", userID).Error("failed to bump permission version")
	}
}

// AssignProfileToUser links userID to profileID, or updates the active flag
// of an existing link. Both the user and the profile must exist.
func (l *Ledger) AssignProfileToUser(ctx context.Context, userID, profileID int64, active bool) (*ProfileAssignment, error) {
	exists, err := l.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if _, err := l.repo.GetProfile(ctx, profileID); err != nil {
		return nil, err
	}

	assignment, err := l.repo.UpsertAssignment(ctx, userID, profileID, active)
	if err != nil {
		return nil, err
	}

	l.metrics.IncLedgerChange("assign")
	l.bump(ctx, userID)
	return assignment, nil
}

// RemoveProfileFromUser removes one assignment according to the deletion policy
func (l *Ledger) RemoveProfileFromUser(ctx context.Context, userID, profileID int64) error {
	var (
		existed bool
		err     error
	)
	switch l.deletion {
	case DeleteTombstone:
		existed, err = l.repo.DeactivateAssignment(ctx, userID, profileID)
	default:
		existed, err = l.repo.DeleteAssignment(ctx, userID, profileID)
	}
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: user %d profile %d", ErrAssignmentNotFound, userID, profileID)
	}

	l.metrics.IncLedgerChange("remove")
	l.bump(ctx, userID)
	return nil
}

// RemoveAllProfilesFromUser removes every assignment of a user and returns how many were affected
func (l *Ledger) RemoveAllProfilesFromUser(ctx context.Context, userID int64) (int64, error) {
	var (
		n   int64
		err error
	)
	switch l.deletion {
	case DeleteTombstone:
		n, err = l.repo.DeactivateUserAssignments(ctx, userID)
	default:
		n, err = l.repo.DeleteUserAssignments(ctx, userID)
	}
	if err != nil {
		return 0, err
	}

	if n > 0 {
		l.metrics.IncLedgerChange("remove_all")
		l.bump(ctx, userID)
	}
	return n, nil
}

// FindUserProfiles lists every assignment of a user, active or not
func (l *Ledger) FindUserProfiles(ctx context.Context, userID int64) ([]UserProfile, error) {
	return l.repo.ListUserProfiles(ctx, userID)
}

// UserHasProfile reports whether the user holds profileCode as an active profile
func (l *Ledger) UserHasProfile(ctx context.Context, userID int64, profileCode string) (bool, error) {
	profiles, err := l.repo.ListActiveProfiles(ctx, userID)
	if err != nil {
		return false, err
	}
	code := NormalizeCode(profileCode)
	for _, p := range profiles {
		if p.Code == code {
			return true, nil
		}
	}
	return false, nil
}
