package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type scheduleRepository struct {
	BaseRepository
}

func NewScheduleRepository(base BaseRepository) repository.ScheduleRepository {
	return &scheduleRepository{base}
}

const scheduleColumns = `id, doctor_id, weekday, is_working, start_minute, end_minute,
	break_start_minute, break_end_minute, slot_duration_minutes, buffer_minutes,
	max_appointments, created_at, updated_at`

func (r *scheduleRepository) GetEntry(ctx context.Context, doctorID uuid.UUID, day model.Weekday) (*model.WorkingScheduleEntry, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM working_schedules
		WHERE doctor_id = $1 AND weekday = $2
	`
	var entry model.WorkingScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, doctorID, day); err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (r *scheduleRepository) ListEntries(ctx context.Context, doctorID uuid.UUID) ([]*model.WorkingScheduleEntry, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM working_schedules
		WHERE doctor_id = $1
	`
	var entries []*model.WorkingScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list working schedule: %w", err)
	}
	return entries, nil
}

func (r *scheduleRepository) Upsert(ctx context.Context, entry *model.WorkingScheduleEntry) error {
	query := `
		INSERT INTO working_schedules (
			id, doctor_id, weekday, is_working, start_minute, end_minute,
			break_start_minute, break_end_minute, slot_duration_minutes,
			buffer_minutes, max_appointments, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (doctor_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			break_start_minute = EXCLUDED.break_start_minute,
			break_end_minute = EXCLUDED.break_end_minute,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			buffer_minutes = EXCLUDED.buffer_minutes,
			max_appointments = EXCLUDED.max_appointments,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now()

	row := r.db.QueryRowxContext(ctx, query,
		entry.ID,
		entry.DoctorID,
		entry.Weekday,
		entry.IsWorking,
		entry.StartTime,
		entry.EndTime,
		entry.BreakStart,
		entry.BreakEnd,
		entry.SlotDuration,
		entry.BufferTime,
		entry.MaxAppointments,
		now,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert working schedule: %w", err)
	}
	return nil
}
