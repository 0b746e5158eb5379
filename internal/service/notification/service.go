package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
)

// InAppTopic is the broker message type of in-app reminders.
const InAppTopic = "reminder.in_app"

// Service delivers due reminders on their channel. It reads the appointment
// and the recipient at send time so messages reflect reschedules.
type Service struct {
	appointments repository.AppointmentRepository
	directory    repository.DirectoryRepository
	emailSvc     email.Sender
	broker       messaging.Broker
}

func NewService(
	appointments repository.AppointmentRepository,
	directory repository.DirectoryRepository,
	emailSvc email.Sender,
	broker messaging.Broker,
) *Service {
	return &Service{
		appointments: appointments,
		directory:    directory,
		emailSvc:     emailSvc,
		broker:       broker,
	}
}

// InAppMessage is the payload published for in-app reminders.
type InAppMessage struct {
	ReminderID    string    `json:"reminder_id"`
	AppointmentID string    `json:"appointment_id"`
	RecipientID   string    `json:"recipient_id"`
	Subject       string    `json:"subject"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// Deliver sends reminder. Reminders of appointments that are no longer
// SCHEDULED are refused with repository.ErrReminderObsolete.
func (s *Service) Deliver(ctx context.Context, reminder *model.Reminder) error {
	apt, err := s.appointments.Get(ctx, reminder.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if apt.Status != model.AppointmentStatusScheduled {
		return fmt.Errorf("appointment %s is %s: %w", apt.ID, apt.Status, repository.ErrReminderObsolete)
	}

	recipient, err := s.directory.GetPatient(ctx, reminder.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	doctorName := "your doctor"
	if doctor, err := s.directory.GetDoctor(ctx, apt.DoctorID); err == nil && doctor.Name != "" {
		doctorName = doctor.Name
	}
	subject, content := Compose(apt, recipient.Name, doctorName)

	switch reminder.Channel {
	case model.ChannelEmail:
		return s.emailSvc.Send(ctx, recipient.Email, subject, content)
	case model.ChannelInApp:
		return s.sendInApp(ctx, reminder, subject, content)
	default:
		return fmt.Errorf("unsupported channel: %s", reminder.Channel)
	}
}

func (s *Service) sendInApp(ctx context.Context, reminder *model.Reminder, subject, content string) error {
	payload, err := json.Marshal(InAppMessage{
		ReminderID:    reminder.ID.String(),
		AppointmentID: reminder.AppointmentID.String(),
		RecipientID:   reminder.RecipientID.String(),
		Subject:       subject,
		Content:       content,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal in-app reminder: %w", err)
	}
	return s.broker.Publish(ctx, messaging.Message{
		ID:      reminder.ID.String(),
		Type:    InAppTopic,
		Key:     reminder.RecipientID.String(),
		Payload: payload,
	})
}

// Compose renders the reminder subject and body.
func Compose(apt *model.Appointment, patientName, doctorName string) (string, string) {
	subject := fmt.Sprintf("Reminder: appointment on %s at %s", apt.DateString(), apt.Time)
	greeting := "Hello"
	if patientName != "" {
		greeting = "Hello " + patientName
	}
	body := fmt.Sprintf("%s,\n\nThis is a reminder of your %s with %s on %s at %s (%d minutes).\n",
		greeting, apt.Type, doctorName, apt.DateString(), apt.Time, apt.DurationMinutes)
	return subject, body
}
