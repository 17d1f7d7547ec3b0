package auth

import (
	"errors"
	"time"

	"github.com/workdesk/accessd/pkg/authz"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInactiveUser is returned when the credentials match a disabled account
	ErrInactiveUser = errors.New("user account is inactive")

	// ErrInvalidToken is returned for a malformed, expired or forged bearer token
	ErrInvalidToken = errors.New("invalid token")
)

// Credentials is the login request body
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Principal is the authenticated caller. The bearer middleware builds it from
// token claims at ingress; the credential verifier builds it at login.
type Principal struct {
	UserID            int64     `json:"user_id"`
	Username          string    `json:"username"`
	DisplayName       string    `json:"display_name,omitempty"`
	Email             string    `json:"email,omitempty"`
	Authorities       []string  `json:"authorities,omitempty"`
	PermissionVersion int64     `json:"-"`
	TokenID           string    `json:"-"`
	ExpiresAt         time.Time `json:"-"`
}

// HasAuthority reports whether the token carried authority
func (p *Principal) HasAuthority(authority string) bool {
	return authz.HasAuthority(p.Authorities, authority)
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Token       string     `json:"token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Authorities []string   `json:"authorities"`
	User        *Principal `json:"user"`
}

// CurrentUser is the live view of the caller returned by /auth/me
type CurrentUser struct {
	UserID      int64                  `json:"user_id"`
	Username    string                 `json:"username"`
	Profiles    []authz.ProfileSummary `json:"profiles"`
	Authorities []string               `json:"authorities"`
	IsAdmin     bool                   `json:"is_admin"`
}
