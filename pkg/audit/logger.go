package audit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/workdesk/accessd/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes and releases the logger
	Close() error
}

// NewEvent creates an event carrying the request ID and acting user from ctx
// and, when r is not nil, the client address, method and path
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if userID, ok := contextkeys.GetUserID(ctx); ok {
		event.UserID = &userID
	}

	if r != nil {
		event.IPAddress = getClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// LogAuthentication records a login attempt
func LogAuthentication(ctx context.Context, logger Logger, r *http.Request, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := NewEvent(ctx, r, eventType, status)
	event.UserID = userID
	event.Username = username
	event.ResourceType = ResourceTypeUser
	event.Message = message
	return logger.Log(ctx, event)
}

// LogMutation records a successful administrative change
func LogMutation(ctx context.Context, logger Logger, r *http.Request, eventType EventType, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := NewEvent(ctx, r, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return logger.Log(ctx, event)
}

// LogDenied records a request refused by an authorization gate
func LogDenied(ctx context.Context, logger Logger, r *http.Request, resourceType ResourceType, resourceID string, reason string) error {
	event := NewEvent(ctx, r, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return logger.Log(ctx, event)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *AuditEvent) error { return nil }

func (NopLogger) Close() error { return nil }
