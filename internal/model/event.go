package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names an outbound side effect of a lifecycle transition.
type EventKind string

const (
	EventReminderScheduled  EventKind = "reminder.scheduled"
	EventRemindersCancelled EventKind = "reminders.cancelled"
	EventAudit              EventKind = "audit.recorded"
	EventAppointmentChanged EventKind = "appointment.changed"
)

// Event is produced by a transition and delivered after the write commits.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind          EventKind         `json:"kind"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	ActorID       uuid.UUID         `json:"actor_id,omitempty"`
	Action        string            `json:"action,omitempty"`
	Status        AppointmentStatus `json:"status,omitempty"`
	Reminder      *Reminder         `json:"reminder,omitempty"`
	Metadata      JSONMap           `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
