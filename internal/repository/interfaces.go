package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSlotTaken is returned when a write would put a second occupying
	// appointment on the same (doctor, date, time).
	ErrSlotTaken = errors.New("slot already taken")
	// ErrStaleState is returned by conditional updates whose expected status
	// no longer matches the stored row.
	ErrStaleState = errors.New("appointment status changed concurrently")
	// ErrReminderObsolete is returned by reminder delivery when the
	// appointment no longer wants the reminder.
	ErrReminderObsolete = errors.New("reminder no longer applies")
)

// All repository interfaces in one file
type (
	ScheduleRepository interface {
		// GetEntry returns ErrNotFound when the doctor has no row for the weekday.
		GetEntry(ctx context.Context, doctorID uuid.UUID, day model.Weekday) (*model.WorkingScheduleEntry, error)
		ListEntries(ctx context.Context, doctorID uuid.UUID) ([]*model.WorkingScheduleEntry, error)
		Upsert(ctx context.Context, entry *model.WorkingScheduleEntry) error
	}

	AppointmentRepository interface {
		// Create inserts a new appointment. The occupancy check and the
		// insert are one atomic step; a clash returns ErrSlotTaken.
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// BookedTimes lists the "HH:MM" times held by occupying appointments
		// of the doctor on date, skipping excludeID.
		BookedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]string, error)
		// UpdateIfStatus writes appointment only if the stored status equals
		// expected (ErrStaleState otherwise). When the new status occupies a
		// slot, the occupancy check runs in the same atomic step (ErrSlotTaken).
		UpdateIfStatus(ctx context.Context, appointment *model.Appointment, expected model.AppointmentStatus) error
	}

	ReminderRepository interface {
		Enqueue(ctx context.Context, reminder *model.Reminder) error
		// CancelPending flips every PENDING reminder of the appointment to CANCELLED.
		CancelPending(ctx context.Context, appointmentID uuid.UUID) (int64, error)
		ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*model.Reminder, error)
		// ProcessDue hands up to limit PENDING reminders with SendAt <= now to
		// fn, claiming and settling each one on its own. A nil error marks it
		// SENT, an error wrapping ErrReminderObsolete marks it CANCELLED, and
		// any other error records the attempt and makes it FAILED after
		// maxAttempts. It returns how many were sent.
		ProcessDue(ctx context.Context, now time.Time, limit, maxAttempts int, fn func(*model.Reminder) error) (int, error)
	}

	ClinicalRecordRepository interface {
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.ClinicalRecord, error)
		// CreateIfAbsent stores record unless one already exists for the
		// appointment and returns whichever record is stored.
		CreateIfAbsent(ctx context.Context, record *model.ClinicalRecord) (*model.ClinicalRecord, error)
		// OpenForAppointment writes appointment under the same conditions as
		// AppointmentRepository.UpdateIfStatus and stores record unless one
		// exists, in one atomic step. Nothing is written when either fails.
		OpenForAppointment(ctx context.Context, appointment *model.Appointment, expected model.AppointmentStatus, record *model.ClinicalRecord) (*model.ClinicalRecord, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ProcessPending locks up to limit publishable events and hands each
		// to fn, marking it PROCESSED or scheduling a retry.
		ProcessPending(ctx context.Context, limit, maxRetries int, retryDelay time.Duration, fn func(*model.OutboxEvent) error) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
	}

	// DirectoryRepository reads patient and doctor identity owned elsewhere.
	DirectoryRepository interface {
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Person, error)
		GetDoctor(ctx context.Context, id uuid.UUID) (*model.Person, error)
	}

	PermissionRepository interface {
		HasPermission(ctx context.Context, userID uuid.UUID, action string, resourceID uuid.UUID) (bool, error)
	}
)
