package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/auth"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/contextkeys"
	"github.com/workdesk/accessd/pkg/httputil"
	"github.com/workdesk/accessd/pkg/observability"
	"github.com/workdesk/accessd/pkg/revocation"
)

// AuthenticatorOptions configures bearer authentication
type AuthenticatorOptions struct {
	// RevocationEnabled rejects tokens whose pv claim is older than the
	// user's current permission version
	RevocationEnabled bool
	Versions          revocation.Store
	Metrics           *observability.Metrics
	Audit             audit.Logger
	Logger            *observability.Logger
}

// Authenticator validates bearer tokens and stores the principal in the request context
type Authenticator struct {
	verifier auth.TokenVerifier
	opts     AuthenticatorOptions
}

// NewAuthenticator creates bearer authentication middleware
func NewAuthenticator(verifier auth.TokenVerifier, opts AuthenticatorOptions) *Authenticator {
	if opts.Versions == nil {
		opts.Versions = revocation.NopStore{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopLogger{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authenticator{verifier: verifier, opts: opts}
}

// Handler wraps an HTTP handler with bearer authentication
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := httputil.BearerToken(r)
		if !ok {
			a.reject(ctx, w, r, "missing", "missing bearer token")
			return
		}

		claims, err := a.verifier.Validate(token)
		if err != nil {
			a.reject(ctx, w, r, "invalid", "invalid or expired token")
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			a.reject(ctx, w, r, "invalid", "invalid or expired token")
			return
		}

		if a.opts.RevocationEnabled {
			current, err := a.opts.Versions.Current(ctx, principal.UserID)
			if err != nil {
				a.opts.Logger.WithError(err).WithField("user_id", principal.UserID).Error("Failed to read permission version")
				httputil.WriteServiceUnavailable(w, "permission version store unavailable")
				return
			}
			if principal.PermissionVersion < current {
				a.reject(ctx, w, r, "stale_version", "token revoked, permissions changed since login")
				return
			}
		}

		ctx = contextkeys.WithPrincipal(ctx, principal)
		ctx = contextkeys.WithUserID(ctx, principal.UserID)
		if logger, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); ok {
			ctx = observability.WithLogger(ctx, logger.WithField("user_id", principal.UserID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(ctx context.Context, w http.ResponseWriter, r *http.Request, reason, message string) {
	a.opts.Metrics.IncTokenRejection(reason)

	event := audit.NewEvent(ctx, r, audit.EventTypeAuthTokenReject, audit.EventStatusFailure)
	event.Message = message
	event.Metadata["reason"] = reason
	if err := a.opts.Audit.Log(ctx, event); err != nil {
		a.opts.Logger.WithError(err).Warn("Failed to write audit event")
	}

	httputil.WriteUnauthorized(w, message)
}

// GetPrincipal returns the authenticated principal of the request, or nil
func GetPrincipal(r *http.Request) *auth.Principal {
	return PrincipalFromContext(r.Context())
}

// PrincipalFromContext returns the principal stored by the Authenticator, or nil
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	principal, _ := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
	return principal
}

// Authorizer builds route gates. Authority gates read the token's embedded
// authorities; permission gates query the policy on every request.
type Authorizer struct {
	policy authz.Policy
	audit  audit.Logger
	logger *observability.Logger
}

// NewAuthorizer creates a gate builder. auditLogger may be nil.
func NewAuthorizer(policy authz.Policy, auditLogger audit.Logger, logger *observability.Logger) *Authorizer {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authorizer{policy: policy, audit: auditLogger, logger: logger}
}

// RequireAuthority passes requests whose token carries any of authorities
func (z *Authorizer) RequireAuthority(authorities ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			for _, authority := range authorities {
				if principal.HasAuthority(authority) {
					next.ServeHTTP(w, r)
					return
				}
			}

			z.deny(w, r, audit.ResourceTypeUser, strconv.FormatInt(principal.UserID, 10),
				strings.Join(authorities, " or ")+" required")
		})
	}
}

// RequireRole passes requests whose token carries ROLE_<code> for any of profileCodes
func (z *Authorizer) RequireRole(profileCodes ...string) func(http.Handler) http.Handler {
	authorities := make([]string, len(profileCodes))
	for i, code := range profileCodes {
		authorities[i] = authz.RoleAuthority(code)
	}
	return z.RequireAuthority(authorities...)
}

// RequirePermission passes requests whose user currently holds operation on
// resource. The decision is made live, not from token authorities.
func (z *Authorizer) RequirePermission(resource, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := z.policy.CanPerform(r.Context(), principal.UserID, resource, operation)
			if err != nil {
				z.logger.WithError(err).WithFields(map[string]interface{}{
					"user_id":   principal.UserID,
					"resource":  resource,
					"operation": operation,
				}).Error("Permission check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !allowed {
				z.deny(w, r, audit.ResourceTypeResource, resource, authz.ScopeAuthority(resource, operation)+" required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (z *Authorizer) deny(w http.ResponseWriter, r *http.Request, resourceType audit.ResourceType, resourceID, reason string) {
	if err := audit.LogDenied(r.Context(), z.audit, r, resourceType, resourceID, reason); err != nil {
		z.logger.WithError(err).Warn("Failed to write audit event")
	}
	httputil.WriteForbidden(w, reason)
}
