package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBLogger(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		_, err := NewDBLogger(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("table creation fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("permission denied"))

		_, err = NewDBLogger(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure audit_logs table")
	})
}

func TestDBLogger_Log(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(context.Background(), db)
	require.NoError(t, err)

	userID := int64(42)
	event := NewEvent(context.Background(), nil, EventTypeAssignmentRemove, EventStatusSuccess)
	event.UserID = &userID
	event.ResourceType = ResourceTypeAssignment
	event.ResourceID = "42:3"
	event.Changes = &ChangeDetails{Before: map[string]interface{}{"active": true}}

	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(
			sqlmock.AnyArg(), "assignment.remove", "success",
			&userID, "",
			"assignment", "42:3",
			"", "", "",
			"", "",
			"", "", sqlmock.AnyArg(), []byte(`{"before":{"active":true}}`),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(9), event.ID)
	assert.NoError(t, logger.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

	err = logger.Log(context.Background(), NewEvent(context.Background(), nil, EventTypeAuthLogin, EventStatusSuccess))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert audit log")
}
