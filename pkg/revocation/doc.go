// Package revocation stores per-user permission versions.
//
// Every ledger or grant change bumps the affected users' versions. Tokens
// record the version at login in their pv claim; when revocation checks are
// enabled the bearer middleware rejects tokens older than the current version.
// With checks disabled NopStore is used and tokens stay valid until expiry.
package revocation
