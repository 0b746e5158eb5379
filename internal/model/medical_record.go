package model

import (
	"time"

	"github.com/google/uuid"
)

// ClinicalRecord is the placeholder consultation record linked to an
// appointment when the consultation starts. At most one exists per appointment.
type ClinicalRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

const ClinicalRecordStatusDraft = "draft"
