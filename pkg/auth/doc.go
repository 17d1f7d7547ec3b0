// Package auth provides login and bearer-token authentication for accessd.
//
// # Overview
//
// A login verifies a username and password, resolves the user's current
// permission snapshot and issues an HS256 JWT whose claims embed the
// snapshot's authorities. Later requests present the token as a bearer
// credential; the middleware validates it and places a Principal in the
// request context.
//
// # Authorities
//
// The Minter projects a snapshot onto two authority families:
//
//	ROLE_<PROFILE_CODE>           one per active profile
//	SCOPE_<RESOURCE>:<OPERATION>  one per granted operation
//
// Authorities are a login-time projection. They are used for coarse route
// gates only and go stale when assignments or grants change:
//
//	result, err := service.AuthenticateUser(ctx, auth.Credentials{
//		Username: "alice",
//		Password: "s3cret",
//	})
//	// result.Authorities: [ROLE_MANAGER SCOPE_TASK:READ SCOPE_TASK:UPDATE]
//
// GetCurrentUser, GetUserPermissions and GetAllowedScreens always query the
// resolver and never read authorities from the token.
//
// # Revocation
//
// When revocation is enabled tokens also carry the user's permission version
// (the pv claim). Every ledger or grant change bumps the version in Redis and
// the bearer middleware rejects tokens minted before the bump.
//
// # Credentials
//
// SQLCredentialVerifier reads the users table and compares bcrypt hashes.
// Unknown users, wrong passwords and inactive accounts are logged with a
// reason; callers only see ErrInvalidCredentials or ErrInactiveUser.
//
// # Related Packages
//
//   - pkg/authz: Permission resolution and authority naming
//   - pkg/revocation: Permission version store
//   - pkg/middleware: Bearer authentication and route gates
package auth
