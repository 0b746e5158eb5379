package appointment

import (
	"time"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

// Action names a lifecycle operation. The values double as audit actions and
// outbox topics.
type Action string

const (
	ActionRequest            Action = "request"
	ActionAccept             Action = "accept"
	ActionReject             Action = "reject"
	ActionReschedule         Action = "reschedule"
	ActionStartConsultation  Action = "start_consultation"
	ActionComplete           Action = "complete_consultation"
	ActionCancelConsultation Action = "cancel_consultation"
	ActionCancel             Action = "cancel"
)

type rule struct {
	from []model.AppointmentStatus
	// to is empty when the action keeps the current status.
	to model.AppointmentStatus
	// validates marks actions that must pass the conflict detector.
	validates bool
}

var rules = map[Action]rule{
	ActionAccept: {
		from:      []model.AppointmentStatus{model.AppointmentStatusPending},
		to:        model.AppointmentStatusScheduled,
		validates: true,
	},
	ActionReject: {
		from: []model.AppointmentStatus{model.AppointmentStatusPending},
		to:   model.AppointmentStatusCancelled,
	},
	ActionReschedule: {
		from:      []model.AppointmentStatus{model.AppointmentStatusPending, model.AppointmentStatusScheduled},
		validates: true,
	},
	ActionStartConsultation: {
		from: []model.AppointmentStatus{model.AppointmentStatusScheduled},
		to:   model.AppointmentStatusInProgress,
	},
	ActionComplete: {
		from: []model.AppointmentStatus{model.AppointmentStatusInProgress},
		to:   model.AppointmentStatusCompleted,
	},
	ActionCancelConsultation: {
		from: []model.AppointmentStatus{model.AppointmentStatusInProgress},
		to:   model.AppointmentStatusCancelled,
	},
	ActionCancel: {
		from: []model.AppointmentStatus{model.AppointmentStatusPending, model.AppointmentStatusScheduled},
		to:   model.AppointmentStatusCancelled,
	},
}

// verbs are used in user-facing rejection messages.
var verbs = map[Action]string{
	ActionAccept:             "accept",
	ActionReject:             "reject",
	ActionReschedule:         "reschedule",
	ActionStartConsultation:  "start the consultation for",
	ActionComplete:           "complete the consultation for",
	ActionCancelConsultation: "cancel the consultation for",
	ActionCancel:             "cancel",
}

// Next returns the status an appointment in from moves to under action, or
// INVALID_STATE_TRANSITION. Terminal statuses accept nothing.
func Next(from model.AppointmentStatus, action Action) (model.AppointmentStatus, error) {
	r, ok := rules[action]
	if !ok || from.Terminal() {
		return "", errors.NewInvalidTransition(verbs[action], statusPhrase(from))
	}
	for _, s := range r.from {
		if s == from {
			if r.to == "" {
				return from, nil
			}
			return r.to, nil
		}
	}
	return "", errors.NewInvalidTransition(verbs[action], statusPhrase(from))
}

func requiresValidation(action Action) bool {
	return rules[action].validates
}

func statusPhrase(s model.AppointmentStatus) string {
	switch s {
	case model.AppointmentStatusPending:
		return "pending"
	case model.AppointmentStatusScheduled:
		return "scheduled"
	case model.AppointmentStatusInProgress:
		return "in progress"
	case model.AppointmentStatusCompleted:
		return "completed"
	case model.AppointmentStatusCancelled:
		return "cancelled"
	}
	return string(s)
}

// planReminders returns one reminder per offset and channel for an
// appointment starting at start. Offsets whose send time is not after now
// are skipped.
func planReminders(apt *model.Appointment, start, now time.Time, offsets []time.Duration, channels []string) []model.Event {
	var events []model.Event
	for _, offset := range offsets {
		sendAt := start.Add(-offset)
		if !sendAt.After(now) {
			continue
		}
		for _, channel := range channels {
			events = append(events, model.Event{
				Kind:          model.EventReminderScheduled,
				AppointmentID: apt.ID,
				OccurredAt:    now,
				Reminder: &model.Reminder{
					AppointmentID: apt.ID,
					RecipientID:   apt.PatientID,
					SendAt:        sendAt,
					Channel:       channel,
					Status:        model.ReminderStatusPending,
				},
			})
		}
	}
	return events
}
