package model

import (
	"time"

	"github.com/google/uuid"
)

type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "PENDING"
	ReminderStatusSent      ReminderStatus = "SENT"
	ReminderStatusFailed    ReminderStatus = "FAILED"
	ReminderStatusCancelled ReminderStatus = "CANCELLED"
)

const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// Reminder is a notification record with a send time. Scheduling only
// writes these; delivery is the reminder sweep's job.
type Reminder struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	AppointmentID uuid.UUID      `db:"appointment_id" json:"appointment_id"`
	RecipientID   uuid.UUID      `db:"recipient_id" json:"recipient_id"`
	SendAt        time.Time      `db:"send_at" json:"send_at"`
	Channel       string         `db:"channel" json:"channel"`
	Status        ReminderStatus `db:"status" json:"status"`
	Attempts      int            `db:"attempts" json:"attempts"`
	LastError     *string        `db:"last_error" json:"last_error,omitempty"`
	SentAt        *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
