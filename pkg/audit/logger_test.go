package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workdesk/accessd/pkg/contextkeys"
	"github.com/workdesk/accessd/pkg/observability"
)

type recordingLogger struct {
	events []*AuditEvent
	err    error
	closed bool
}

func (l *recordingLogger) Log(_ context.Context, event *AuditEvent) error {
	l.events = append(l.events, event)
	return l.err
}

func (l *recordingLogger) Close() error {
	l.closed = true
	return l.err
}

func TestNewEvent(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	ctx = contextkeys.WithUserID(ctx, 42)

	r := httptest.NewRequest("DELETE", "/permissions/profiles/3", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	r.Header.Set("User-Agent", "test-agent")

	event := NewEvent(ctx, r, EventTypeProfileDelete, EventStatusSuccess)

	assert.Equal(t, EventTypeProfileDelete, event.EventType)
	assert.Equal(t, "req-1", event.RequestID)
	require.NotNil(t, event.UserID)
	assert.Equal(t, int64(42), *event.UserID)
	assert.Equal(t, "10.0.0.1", event.IPAddress)
	assert.Equal(t, "test-agent", event.UserAgent)
	assert.Equal(t, "DELETE", event.Method)
	assert.Equal(t, "/permissions/profiles/3", event.Path)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNewEvent_WithoutRequest(t *testing.T) {
	event := NewEvent(context.Background(), nil, EventTypeAuthLogin, EventStatusSuccess)
	assert.Nil(t, event.UserID)
	assert.Empty(t, event.IPAddress)
	assert.NotNil(t, event.Metadata)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1:1234", getClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", getClientIP(r))
}

func TestLogHelpers(t *testing.T) {
	rec := &recordingLogger{}
	ctx := context.Background()
	userID := int64(7)

	require.NoError(t, LogAuthentication(ctx, rec, nil, EventTypeAuthLoginFailed, &userID, "alice", EventStatusFailure, "bad password"))
	require.NoError(t, LogMutation(ctx, rec, nil, EventTypeGrantSet, ResourceTypeGrant, "3:TASK:DELETE",
		&ChangeDetails{After: map[string]bool{"granted": true}}, "grant set"))
	require.NoError(t, LogDenied(ctx, rec, nil, ResourceTypeProfile, "3", "ROLE_ADMIN required"))

	require.Len(t, rec.events, 3)
	assert.Equal(t, "alice", rec.events[0].Username)
	assert.Equal(t, ResourceTypeUser, rec.events[0].ResourceType)
	assert.Equal(t, "3:TASK:DELETE", rec.events[1].ResourceID)
	assert.NotNil(t, rec.events[1].Changes)
	assert.Equal(t, EventStatusDenied, rec.events[2].Status)
	assert.Equal(t, "Access denied: ROLE_ADMIN required", rec.events[2].Message)
}

func TestLogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogLogger(observability.NewLogger(observability.InfoLevel, &buf))

	userID := int64(42)
	event := NewEvent(context.Background(), nil, EventTypeAssignmentUpsert, EventStatusSuccess)
	event.UserID = &userID
	event.ResourceType = ResourceTypeAssignment
	event.ResourceID = "42:3"
	event.Message = "profile assigned"
	event.Metadata["active"] = true

	require.NoError(t, logger.Log(context.Background(), event))
	require.NoError(t, logger.Close())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "profile assigned", entry["msg"])
	assert.Equal(t, "assignment.upsert", entry["event_type"])
	assert.Equal(t, "42:3", entry["resource_id"])
	assert.Equal(t, true, entry["meta_active"])
	assert.Equal(t, float64(42), entry["user_id"])
}

func TestLogLogger_FailureIsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogLogger(observability.NewLogger(observability.InfoLevel, &buf))

	event := NewEvent(context.Background(), nil, EventTypeAuthLoginFailed, EventStatusFailure)
	require.NoError(t, logger.Log(context.Background(), event))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
}

func TestMultiLogger(t *testing.T) {
	first := &recordingLogger{err: errors.New("disk full")}
	second := &recordingLogger{}
	multi := NewMultiLogger(first, second)

	event := NewEvent(context.Background(), nil, EventTypeProfileCreate, EventStatusSuccess)
	err := multi.Log(context.Background(), event)
	assert.EqualError(t, err, "disk full")
	assert.Len(t, second.events, 1, "later sinks still receive the event")

	assert.Error(t, multi.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestNopLogger(t *testing.T) {
	var logger Logger = NopLogger{}
	assert.NoError(t, logger.Log(context.Background(), &AuditEvent{}))
	assert.NoError(t, logger.Close())
}
