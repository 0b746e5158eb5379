package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type reminderRepository struct {
	BaseRepository
}

func NewReminderRepository(base BaseRepository) repository.ReminderRepository {
	return &reminderRepository{base}
}

const reminderColumns = `id, appointment_id, recipient_id, send_at, channel, status,
	attempts, last_error, sent_at, created_at, updated_at`

func (r *reminderRepository) Enqueue(ctx context.Context, reminder *model.Reminder) error {
	if reminder.ID == uuid.Nil {
		reminder.ID = uuid.New()
	}
	if reminder.Status == "" {
		reminder.Status = model.ReminderStatusPending
	}
	now := time.Now()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now

	query := `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES (:id, :appointment_id, :recipient_id, :send_at, :channel, :status,
			:attempts, :last_error, :sent_at, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("failed to enqueue reminder: %w", err)
	}
	return nil
}

func (r *reminderRepository) CancelPending(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	query := `
		UPDATE reminders
		SET status = $1, updated_at = NOW()
		WHERE appointment_id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query,
		model.ReminderStatusCancelled, appointmentID, model.ReminderStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders: %w", err)
	}
	return result.RowsAffected()
}

func (r *reminderRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*model.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
		FROM reminders
		WHERE appointment_id = $1
		ORDER BY send_at
	`
	var reminders []*model.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, appointmentID); err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) ProcessDue(ctx context.Context, now time.Time, limit, maxAttempts int, fn func(*model.Reminder) error) (int, error) {
	processed := 0
	// Non-nil so pq encodes it as an empty array, not NULL.
	tried := []string{}
	// One transaction per reminder: a failure settling one reminder must not
	// roll back the ones already delivered.
	for len(tried) < limit {
		var (
			reminder model.Reminder
			found    bool
			sent     bool
		)
		err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
			query := `SELECT ` + reminderColumns + `
				FROM reminders
				WHERE status = $1 AND send_at <= $2
				AND id <> ALL($3::uuid[])
				ORDER BY send_at
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			`
			if err := tx.GetContext(ctx, &reminder, query, model.ReminderStatusPending, now, pq.Array(tried)); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return fmt.Errorf("failed to fetch due reminder: %w", err)
			}
			found = true

			var err error
			sent, err = settleReminder(ctx, tx, &reminder, fn(&reminder), now, maxAttempts)
			return err
		})
		if err != nil {
			return processed, err
		}
		if !found {
			break
		}
		tried = append(tried, reminder.ID.String())
		if sent {
			processed++
		}
	}
	return processed, nil
}

// settleReminder stores the outcome of one delivery and reports whether it was sent.
func settleReminder(ctx context.Context, tx *sqlx.Tx, reminder *model.Reminder, sendErr error, now time.Time, maxAttempts int) (bool, error) {
	switch {
	case sendErr == nil:
		_, err := tx.ExecContext(ctx, `
			UPDATE reminders
			SET attempts = attempts + 1, status = $1, sent_at = $2, updated_at = NOW()
			WHERE id = $3
		`, model.ReminderStatusSent, now, reminder.ID)
		if err != nil {
			return false, fmt.Errorf("failed to mark reminder sent: %w", err)
		}
		return true, nil

	case errors.Is(sendErr, repository.ErrReminderObsolete):
		_, err := tx.ExecContext(ctx, `
			UPDATE reminders
			SET status = $1, updated_at = NOW()
			WHERE id = $2
		`, model.ReminderStatusCancelled, reminder.ID)
		if err != nil {
			return false, fmt.Errorf("failed to cancel reminder: %w", err)
		}
		return false, nil
	}

	status := model.ReminderStatusPending
	if reminder.Attempts+1 >= maxAttempts {
		status = model.ReminderStatusFailed
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE reminders
		SET attempts = attempts + 1, last_error = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`, sendErr.Error(), status, reminder.ID)
	if err != nil {
		return false, fmt.Errorf("failed to record reminder failure: %w", err)
	}
	return false, nil
}
