package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var reminderRowColumns = []string{"id", "appointment_id", "recipient_id", "send_at", "channel", "status",
	"attempts", "last_error", "sent_at", "created_at", "updated_at"}

func dueReminderRow(id uuid.UUID, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(reminderRowColumns).
		AddRow(id.String(), uuid.NewString(), uuid.NewString(), now.Add(-time.Minute), model.ChannelEmail,
			string(model.ReminderStatusPending), 0, nil, nil, now, now)
}

func TestReminderProcessDueCommitsEachReminder(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	first, second := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM reminders").WillReturnRows(dueReminderRow(first, now))
	mock.ExpectExec("UPDATE reminders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM reminders").WillReturnRows(dueReminderRow(second, now))
	mock.ExpectExec("UPDATE reminders").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	var delivered []uuid.UUID
	repo := NewReminderRepository(NewBaseRepository(db))
	sent, err := repo.ProcessDue(context.Background(), now, 10, 3, func(r *model.Reminder) error {
		delivered = append(delivered, r.ID)
		return nil
	})

	assert.Error(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []uuid.UUID{first, second}, delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderProcessDueCancelsObsoleteReminder(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM reminders").WillReturnRows(dueReminderRow(id, now))
	mock.ExpectExec("UPDATE reminders").
		WithArgs(string(model.ReminderStatusCancelled), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM reminders").WillReturnRows(sqlmock.NewRows(reminderRowColumns))
	mock.ExpectCommit()

	repo := NewReminderRepository(NewBaseRepository(db))
	sent, err := repo.ProcessDue(context.Background(), now, 10, 3, func(r *model.Reminder) error {
		return fmt.Errorf("appointment is COMPLETED: %w", repository.ErrReminderObsolete)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	require.NoError(t, mock.ExpectationsWereMet())
}
