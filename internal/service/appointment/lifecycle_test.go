package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

var allActions = []Action{
	ActionAccept, ActionReject, ActionReschedule, ActionStartConsultation,
	ActionComplete, ActionCancelConsultation, ActionCancel,
}

func TestNextFollowsStateTable(t *testing.T) {
	tests := []struct {
		from   model.AppointmentStatus
		action Action
		want   model.AppointmentStatus
	}{
		{model.AppointmentStatusPending, ActionAccept, model.AppointmentStatusScheduled},
		{model.AppointmentStatusPending, ActionReject, model.AppointmentStatusCancelled},
		{model.AppointmentStatusPending, ActionReschedule, model.AppointmentStatusPending},
		{model.AppointmentStatusScheduled, ActionReschedule, model.AppointmentStatusScheduled},
		{model.AppointmentStatusScheduled, ActionStartConsultation, model.AppointmentStatusInProgress},
		{model.AppointmentStatusInProgress, ActionComplete, model.AppointmentStatusCompleted},
		{model.AppointmentStatusInProgress, ActionCancelConsultation, model.AppointmentStatusCancelled},
		{model.AppointmentStatusPending, ActionCancel, model.AppointmentStatusCancelled},
		{model.AppointmentStatusScheduled, ActionCancel, model.AppointmentStatusCancelled},
	}
	for _, tt := range tests {
		got, err := Next(tt.from, tt.action)
		require.NoError(t, err, "%s from %s", tt.action, tt.from)
		assert.Equal(t, tt.want, got, "%s from %s", tt.action, tt.from)
	}
}

func TestNextRejectsOutOfOrderMoves(t *testing.T) {
	invalid := []struct {
		from   model.AppointmentStatus
		action Action
	}{
		{model.AppointmentStatusScheduled, ActionAccept},
		{model.AppointmentStatusScheduled, ActionReject},
		{model.AppointmentStatusPending, ActionStartConsultation},
		{model.AppointmentStatusPending, ActionComplete},
		{model.AppointmentStatusScheduled, ActionComplete},
		{model.AppointmentStatusScheduled, ActionCancelConsultation},
		{model.AppointmentStatusInProgress, ActionReschedule},
		{model.AppointmentStatusInProgress, ActionCancel},
		{model.AppointmentStatusInProgress, ActionAccept},
	}
	for _, tt := range invalid {
		_, err := Next(tt.from, tt.action)
		assert.Equal(t, errors.ErrInvalidStateTransition, errors.CodeOf(err), "%s from %s", tt.action, tt.from)
	}
}

func TestNextTerminalStatesAcceptNothing(t *testing.T) {
	for _, from := range []model.AppointmentStatus{model.AppointmentStatusCompleted, model.AppointmentStatusCancelled} {
		for _, action := range allActions {
			_, err := Next(from, action)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.InvalidStateTransition)
		}
	}
}

func TestPlanRemindersSkipsPastOffsets(t *testing.T) {
	apt := &model.Appointment{Base: model.Base{ID: uuid.New()}, PatientID: uuid.New()}
	start := time.Date(2026, 3, 2, 10, 45, 0, 0, time.UTC)
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	events := planReminders(apt, start, now, []time.Duration{24 * time.Hour, time.Hour}, []string{model.ChannelEmail, model.ChannelInApp})
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, model.EventReminderScheduled, ev.Kind)
		assert.Equal(t, start.Add(-time.Hour), ev.Reminder.SendAt)
		assert.Equal(t, apt.PatientID, ev.Reminder.RecipientID)
	}
	assert.Equal(t, model.ChannelEmail, events[0].Reminder.Channel)
	assert.Equal(t, model.ChannelInApp, events[1].Reminder.Channel)

	assert.Empty(t, planReminders(apt, start, start, []time.Duration{time.Hour}, []string{model.ChannelEmail}))
}
