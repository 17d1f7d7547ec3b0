// Package authz resolves what a user may do when they hold several profiles at once.
//
// # Overview
//
// A user holds any number of profiles through the assignment ledger. Each
// profile carries resource grants (profile, resource, operation, granted) and
// field grants (profile, resource, field, EDIT|READ|HIDDEN). A profile takes
// part in resolution only when both its assignment and the profile itself are
// active; active profiles are processed by level, then id.
//
// # Resolution Rules
//
// Resource grants are additive. A user may perform an operation when any
// active profile has a granted row for it; no row means deny.
//
// Field grants are restrictive. When active profiles disagree the most
// restrictive value wins (HIDDEN > READ > EDIT); no row means EDIT.
//
//	resolver := authz.NewResolver(store, authz.DefaultResolverOptions(), metrics)
//	ok, err := resolver.HasPermission(ctx, userID, "TASK", "DELETE")
//	access, err := resolver.GetFieldPermission(ctx, userID, "TASK", "estimatedHours")
//
// GetUserPermissions returns a Snapshot. Its field map is built by applying
// profiles in order and keeping the last value seen (MergeOverwrite), which can
// differ from GetFieldPermission; MergeRestrictive makes the two agree.
//
// # Administration
//
// Ledger upserts and removes assignments. Catalog manages profiles, resources,
// operations and grants; DeleteProfile fails with *ProfileInUseError while any
// assignment, active or inactive, references the profile.
//
// Every change that alters a user's effective permissions bumps that user's
// permission version through VersionBumper so that issued tokens can be
// recognised as stale.
package authz
