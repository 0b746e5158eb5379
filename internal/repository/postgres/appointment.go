package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_date, appointment_time,
	duration_minutes, status, type, reason, note, cancel_reason, created_at, updated_at`

func occupyingStatusArray() interface{} {
	statuses := make([]string, len(model.OccupyingStatuses))
	for i, s := range model.OccupyingStatuses {
		statuses[i] = string(s)
	}
	return pq.Array(statuses)
}

// lockSlot serializes writers of one (doctor, date, time) for the rest of tx.
func lockSlot(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	key := fmt.Sprintf("%s|%s|%s", a.DoctorID, a.DateString(), a.Time)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock slot: %w", err)
	}
	return nil
}

func slotOccupied(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			AND appointment_date = $2
			AND appointment_time = $3
			AND status = ANY($4)
			AND id <> $5
		)
	`
	var taken bool
	err := tx.GetContext(ctx, &taken, query, a.DoctorID, a.Date, a.Time, occupyingStatusArray(), a.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check slot occupancy: %w", err)
	}
	return taken, nil
}

func (r *appointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if a.Status.Occupies() {
			if err := lockSlot(ctx, tx, a); err != nil {
				return err
			}
			taken, err := slotOccupied(ctx, tx, a)
			if err != nil {
				return err
			}
			if taken {
				return repository.ErrSlotTaken
			}
		}

		query := `
			INSERT INTO appointments (` + appointmentColumns + `)
			VALUES (:id, :patient_id, :doctor_id, :appointment_date, :appointment_time,
				:duration_minutes, :status, :type, :reason, :note, :cancel_reason,
				:created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
			if isUniqueViolation(err) {
				return repository.ErrSlotTaken
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var a model.Appointment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filters != nil {
		if filters.DoctorID != uuid.Nil {
			args = append(args, filters.DoctorID)
			conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", len(args)))
		}
		if !filters.Date.IsZero() {
			args = append(args, filters.Date)
			conditions = append(conditions, fmt.Sprintf("appointment_date = $%d", len(args)))
		}
		if len(filters.Statuses) > 0 {
			statuses := make([]string, len(filters.Statuses))
			for i, s := range filters.Statuses {
				statuses[i] = string(s)
			}
			args = append(args, pq.Array(statuses))
			conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY appointment_date, appointment_time, created_at"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) BookedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]string, error) {
	query := `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = $1
		AND appointment_date = $2
		AND status = ANY($3)
		AND id <> $4
		ORDER BY appointment_time
	`
	var times []string
	if err := r.db.SelectContext(ctx, &times, query, doctorID, date, occupyingStatusArray(), excludeID); err != nil {
		return nil, fmt.Errorf("failed to list booked times: %w", err)
	}
	return times, nil
}

func (r *appointmentRepository) UpdateIfStatus(ctx context.Context, a *model.Appointment, expected model.AppointmentStatus) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return updateIfStatus(ctx, tx, a, expected)
	})
}

// updateIfStatus is the conditional write of UpdateIfStatus inside tx.
func updateIfStatus(ctx context.Context, tx *sqlx.Tx, a *model.Appointment, expected model.AppointmentStatus) error {
	a.UpdatedAt = time.Now()

	if a.Status.Occupies() {
		if err := lockSlot(ctx, tx, a); err != nil {
			return err
		}
		taken, err := slotOccupied(ctx, tx, a)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrSlotTaken
		}
	}

	query := `
		UPDATE appointments
		SET appointment_date = $1,
			appointment_time = $2,
			duration_minutes = $3,
			status = $4,
			note = $5,
			cancel_reason = $6,
			updated_at = $7
		WHERE id = $8 AND status = $9
	`
	result, err := tx.ExecContext(ctx, query,
		a.Date,
		a.Time,
		a.DurationMinutes,
		a.Status,
		a.Note,
		a.CancelReason,
		a.UpdatedAt,
		a.ID,
		expected,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrSlotTaken
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return repository.ErrStaleState
	}
	return nil
}
