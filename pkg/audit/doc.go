// Package audit records who changed access rights and who tried to log in.
//
// # Event Types
//
// Authentication: auth.login, auth.login_failed, auth.token_reject
// Authorization: authz.access_denied
// Administration: profile.*, assignment.*, grant.*, catalog.*
//
// # Sinks
//
// LogLogger writes events through the structured application logger.
// DBLogger inserts them into the audit_logs table. MultiLogger fans out to
// several sinks and NopLogger drops everything.
//
//	logger := audit.NewMultiLogger(audit.NewLogLogger(appLogger), dbLogger)
//	audit.LogMutation(ctx, logger, r, audit.EventTypeAssignmentUpsert,
//		audit.ResourceTypeAssignment, "42:3", nil, "profile assigned")
package audit
