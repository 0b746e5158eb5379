package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment. Only the
// constants below are valid; Parse rejects anything else.
type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "PENDING"
	AppointmentStatusScheduled  AppointmentStatus = "SCHEDULED"
	AppointmentStatusInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentStatusCompleted  AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled  AppointmentStatus = "CANCELLED"
)

// OccupyingStatuses reserve a doctor's (date, time) against double booking.
var OccupyingStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusScheduled,
	AppointmentStatusInProgress,
}

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case AppointmentStatusPending, AppointmentStatusScheduled, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid appointment status %q", s)
}

// Occupies reports whether the status holds the slot.
func (s AppointmentStatus) Occupies() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusScheduled, AppointmentStatusInProgress:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

func (s AppointmentStatus) Value() (driver.Value, error) {
	if _, err := ParseAppointmentStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *AppointmentStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan appointment status: unsupported type %T", src)
	}
	parsed, err := ParseAppointmentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Appointment is owned by the scheduling core; patient and doctor are
// referenced by id only.
type Appointment struct {
	Base
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Date            time.Time         `db:"appointment_date" json:"-"`
	Time            string            `db:"appointment_time" json:"time"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Type            string            `db:"type" json:"type"`
	Reason          string            `db:"reason" json:"reason,omitempty"`
	Note            string            `db:"note" json:"note,omitempty"`
	CancelReason    *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// DateString is the calendar date as YYYY-MM-DD.
func (a *Appointment) DateString() string {
	return a.Date.Format("2006-01-02")
}

// AppointmentView is the JSON shape with the date formatted.
type AppointmentView struct {
	*Appointment
	Date string `json:"date"`
}

func (a *Appointment) View() AppointmentView {
	return AppointmentView{Appointment: a, Date: a.DateString()}
}

type CreateAppointmentRequest struct {
	PatientID       string `json:"patient_id" binding:"required,uuid"`
	DoctorID        string `json:"doctor_id" binding:"required,uuid"`
	Date            string `json:"date" binding:"required,datetime=2006-01-02"`
	Time            string `json:"time" binding:"required,hhmm"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=5,max=480"`
	Type            string `json:"type" binding:"omitempty,oneof=consultation followup emergency checkup"`
	Reason          string `json:"reason" binding:"max=1000"`
}

type RescheduleRequest struct {
	Date string `json:"date" binding:"required,datetime=2006-01-02"`
	Time string `json:"time" binding:"required,hhmm"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type AppointmentFilters struct {
	DoctorID uuid.UUID
	Date     time.Time
	Statuses []AppointmentStatus
}
