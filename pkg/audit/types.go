package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthTokenReject EventType = "auth.token_reject"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Profile catalog events
	EventTypeProfileCreate EventType = "profile.create"
	EventTypeProfileUpdate EventType = "profile.update"
	EventTypeProfileDelete EventType = "profile.delete"

	// Assignment ledger events
	EventTypeAssignmentUpsert    EventType = "assignment.upsert"
	EventTypeAssignmentRemove    EventType = "assignment.remove"
	EventTypeAssignmentRemoveAll EventType = "assignment.remove_all"

	// Grant events
	EventTypeGrantSet        EventType = "grant.set"
	EventTypeGrantRevoke     EventType = "grant.revoke"
	EventTypeFieldGrantSet   EventType = "grant.field_set"
	EventTypeFieldGrantClear EventType = "grant.field_clear"

	// Catalog events
	EventTypeResourceCreate  EventType = "catalog.resource_create"
	EventTypeOperationCreate EventType = "catalog.operation_create"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of object an event is about
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeProfile    ResourceType = "profile"
	ResourceTypeAssignment ResourceType = "assignment"
	ResourceTypeGrant      ResourceType = "grant"
	ResourceTypeResource   ResourceType = "resource"
	ResourceTypeOperation  ResourceType = "operation"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
