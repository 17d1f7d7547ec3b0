package authz

import (
	"sort"
	"strings"
)

const (
	RolePrefix  = "ROLE_"
	ScopePrefix = "SCOPE_"
)

// RoleAuthority names the authority held by every user with an active profile
func RoleAuthority(profileCode string) string {
	return RolePrefix + NormalizeCode(profileCode)
}

// ScopeAuthority names the authority for one granted operation on a resource
func ScopeAuthority(resourceCode, operationCode string) string {
	return ScopePrefix + NormalizeCode(resourceCode) + ":" + NormalizeCode(operationCode)
}

// Authorities projects a snapshot onto a sorted, de-duplicated authority list:
// one role per active profile and one scope per granted operation.
func Authorities(s *Snapshot) []string {
	set := make(map[string]struct{})
	for _, p := range s.Profiles {
		set[RoleAuthority(p.Code)] = struct{}{}
	}
	for resource, operations := range s.Permissions {
		for _, op := range operations {
			set[ScopeAuthority(resource, op)] = struct{}{}
		}
	}

	authorities := make([]string, 0, len(set))
	for a := range set {
		authorities = append(authorities, a)
	}
	sort.Strings(authorities)
	return authorities
}

// HasAuthority reports whether authority is in the list, ignoring case
func HasAuthority(authorities []string, authority string) bool {
	for _, a := range authorities {
		if strings.EqualFold(a, authority) {
			return true
		}
	}
	return false
}
