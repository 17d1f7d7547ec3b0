package auth

import "github.com/workdesk/accessd/pkg/authz"

// Minter turns a permission snapshot into token authorities
type Minter struct{}

// NewMinter creates a minter
func NewMinter() *Minter {
	return &Minter{}
}

// Mint returns one ROLE_ authority per active profile and one SCOPE_
// authority per granted operation, sorted and de-duplicated
func (m *Minter) Mint(snapshot *authz.Snapshot) []string {
	if snapshot == nil {
		return []string{}
	}
	return authz.Authorities(snapshot)
}
