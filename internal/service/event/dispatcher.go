package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

// AuditSink records who did what to which resource.
type AuditSink interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID uuid.UUID, metadata interface{}) error
}

// Dispatcher delivers the events of a committed transition. Every failure is
// logged and counted; none is returned, so a committed change is never
// undone by a downstream outage.
type Dispatcher struct {
	reminders repository.ReminderRepository
	audit     AuditSink
	outbox    repository.OutboxRepository
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(
	reminders repository.ReminderRepository,
	audit AuditSink,
	outbox repository.OutboxRepository,
	log *logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		reminders: reminders,
		audit:     audit,
		outbox:    outbox,
		log:       log,
		metrics:   m,
	}
}

// Dispatch delivers events in order.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.Event) {
	for i := range events {
		ev := &events[i]
		if err := d.deliver(ctx, ev); err != nil {
			d.metrics.ObserveDispatchFailure(string(ev.Kind))
			d.log.Error(err, "failed to deliver appointment event",
				"kind", string(ev.Kind),
				"appointment_id", ev.AppointmentID.String(),
				"action", ev.Action,
			)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev *model.Event) error {
	switch ev.Kind {
	case model.EventReminderScheduled:
		if ev.Reminder == nil {
			return fmt.Errorf("reminder event without reminder")
		}
		return d.reminders.Enqueue(ctx, ev.Reminder)

	case model.EventRemindersCancelled:
		_, err := d.reminders.CancelPending(ctx, ev.AppointmentID)
		return err

	case model.EventAudit:
		return d.audit.Record(ctx, ev.ActorID, ev.Action, model.AuditResourceAppointment, ev.AppointmentID, ev.Metadata)

	case model.EventAppointmentChanged:
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		return d.outbox.Create(ctx, &model.OutboxEvent{
			EventType: OutboxType(ev.Action),
			Payload:   payload,
		})

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// OutboxType is the broker topic for an appointment change.
func OutboxType(action string) string {
	return "appointment." + action
}
