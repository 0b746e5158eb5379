package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type clinicalRecordRepository struct {
	BaseRepository
}

func NewClinicalRecordRepository(base BaseRepository) repository.ClinicalRecordRepository {
	return &clinicalRecordRepository{base}
}

const clinicalRecordSelect = `
	SELECT id, appointment_id, patient_id, doctor_id, status, created_at, updated_at
	FROM clinical_records
	WHERE appointment_id = $1
`

const clinicalRecordInsert = `
	INSERT INTO clinical_records (id, appointment_id, patient_id, doctor_id, status, created_at, updated_at)
	VALUES (:id, :appointment_id, :patient_id, :doctor_id, :status, :created_at, :updated_at)
	ON CONFLICT (appointment_id) DO NOTHING
`

func (r *clinicalRecordRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.ClinicalRecord, error) {
	var record model.ClinicalRecord
	if err := r.db.GetContext(ctx, &record, clinicalRecordSelect, appointmentID); err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

func (r *clinicalRecordRepository) CreateIfAbsent(ctx context.Context, record *model.ClinicalRecord) (*model.ClinicalRecord, error) {
	prepareRecord(record)
	if _, err := r.db.NamedExecContext(ctx, clinicalRecordInsert, record); err != nil {
		return nil, fmt.Errorf("failed to create clinical record: %w", err)
	}
	return r.GetByAppointment(ctx, record.AppointmentID)
}

func (r *clinicalRecordRepository) OpenForAppointment(ctx context.Context, a *model.Appointment, expected model.AppointmentStatus, record *model.ClinicalRecord) (*model.ClinicalRecord, error) {
	prepareRecord(record)

	var stored model.ClinicalRecord
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateIfStatus(ctx, tx, a, expected); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, clinicalRecordInsert, record); err != nil {
			return fmt.Errorf("failed to create clinical record: %w", err)
		}
		if err := tx.GetContext(ctx, &stored, clinicalRecordSelect, record.AppointmentID); err != nil {
			return fmt.Errorf("failed to read clinical record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func prepareRecord(record *model.ClinicalRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = model.ClinicalRecordStatusDraft
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
}
