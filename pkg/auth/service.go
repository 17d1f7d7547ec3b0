package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/observability"
	"github.com/workdesk/accessd/pkg/revocation"
)

// PermissionSource resolves live permission state
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID int64) (*authz.Snapshot, error)
}

// ServiceOptions configures token issuance
type ServiceOptions struct {
	Issuer            string
	TokenTTL          time.Duration
	ScreenOperation   string
	AdminProfileCode  string
	RevocationEnabled bool
}

// Service runs the login flow and answers live "who am I" queries
type Service struct {
	verifier    CredentialVerifier
	permissions PermissionSource
	signer      TokenSigner
	minter      *Minter
	versions    revocation.Store
	opts        ServiceOptions
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewService creates the authentication service. versions and metrics may be nil.
func NewService(verifier CredentialVerifier, permissions PermissionSource, signer TokenSigner, versions revocation.Store, opts ServiceOptions, metrics *observability.Metrics, logger *observability.Logger) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 8 * time.Hour
	}
	if opts.ScreenOperation == "" {
		opts.ScreenOperation = "READ"
	}
	opts.ScreenOperation = authz.NormalizeCode(opts.ScreenOperation)
	if opts.AdminProfileCode == "" {
		opts.AdminProfileCode = authz.AdminProfileCode
	}
	opts.AdminProfileCode = authz.NormalizeCode(opts.AdminProfileCode)
	if versions == nil {
		versions = revocation.NopStore{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		verifier:    verifier,
		permissions: permissions,
		signer:      signer,
		minter:      NewMinter(),
		versions:    versions,
		opts:        opts,
		metrics:     metrics,
		logger:      logger,
	}
}

// Options returns the effective options
func (s *Service) Options() ServiceOptions {
	return s.opts
}

// AuthenticateUser verifies credentials, resolves a fresh snapshot and
// returns a signed token carrying the minted authorities
func (s *Service) AuthenticateUser(ctx context.Context, creds Credentials) (*LoginResult, error) {
	principal, err := s.verifier.Verify(ctx, creds.Username, creds.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			s.metrics.IncLogin("invalid_credentials")
		case errors.Is(err, ErrInactiveUser):
			s.metrics.IncLogin("inactive_user")
		default:
			s.metrics.IncLogin("error")
		}
		return nil, err
	}

	// the version is read first so a change committed while the snapshot
	// resolves leaves the token behind the store and gets it rejected
	var version int64
	if s.opts.RevocationEnabled {
		version, err = s.versions.Current(ctx, principal.UserID)
		if err != nil {
			s.metrics.IncLogin("error")
			return nil, fmt.Errorf("failed to read permission version for user %d: %w", principal.UserID, err)
		}
	}

	snapshot, err := s.permissions.GetUserPermissions(ctx, principal.UserID)
	if err != nil {
		s.metrics.IncLogin("error")
		return nil, fmt.Errorf("failed to resolve permissions for user %d: %w", principal.UserID, err)
	}
	authorities := s.minter.Mint(snapshot)

	claims := NewClaims(principal, authorities, version, s.opts.Issuer, time.Now(), s.opts.TokenTTL)
	token, err := s.signer.Mint(claims)
	if err != nil {
		s.metrics.IncLogin("error")
		return nil, err
	}

	principal.Authorities = authorities
	principal.PermissionVersion = version
	principal.TokenID = claims.ID
	principal.ExpiresAt = claims.ExpiresAt.Time

	s.metrics.IncLogin("success")
	s.logger.WithFields(map[string]interface{}{
		"user_id":     principal.UserID,
		"username":    principal.Username,
		"authorities": len(authorities),
	}).Info("User authenticated")

	return &LoginResult{
		Token:       token,
		TokenType:   "Bearer",
		ExpiresAt:   principal.ExpiresAt,
		Authorities: authorities,
		User:        principal,
	}, nil
}

// GetCurrentUser returns the caller's live profiles and authorities. The
// token's embedded authorities are ignored, and every field comes from one
// snapshot.
func (s *Service) GetCurrentUser(ctx context.Context, principal *Principal) (*CurrentUser, error) {
	snapshot, err := s.permissions.GetUserPermissions(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	return &CurrentUser{
		UserID:      principal.UserID,
		Username:    principal.Username,
		Profiles:    snapshot.Profiles,
		Authorities: s.minter.Mint(snapshot),
		IsAdmin:     snapshot.HasProfile(s.opts.AdminProfileCode),
	}, nil
}

// GetUserPermissions returns the caller's live permission snapshot
func (s *Service) GetUserPermissions(ctx context.Context, principal *Principal) (*authz.Snapshot, error) {
	return s.permissions.GetUserPermissions(ctx, principal.UserID)
}

// GetAllowedScreens returns the sorted resources on which the caller holds
// the screen operation
func (s *Service) GetAllowedScreens(ctx context.Context, principal *Principal) ([]string, error) {
	snapshot, err := s.permissions.GetUserPermissions(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	return snapshot.ResourcesWith(s.opts.ScreenOperation), nil
}
