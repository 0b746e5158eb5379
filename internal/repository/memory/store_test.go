package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

func newAppointment(doctorID uuid.UUID, date time.Time, at string, status model.AppointmentStatus) *model.Appointment {
	return &model.Appointment{
		PatientID:       uuid.New(),
		DoctorID:        doctorID,
		Date:            date,
		Time:            at,
		DurationMinutes: 30,
		Status:          status,
	}
}

func TestAppointmentCreateRejectsOccupiedSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Appointments()
	doctorID := uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newAppointment(doctorID, date, "10:00", model.AppointmentStatusPending)))

	err := repo.Create(ctx, newAppointment(doctorID, date, "10:00", model.AppointmentStatusPending))
	assert.ErrorIs(t, err, repository.ErrSlotTaken)

	// a different time, or a cancelled row, does not occupy
	assert.NoError(t, repo.Create(ctx, newAppointment(doctorID, date, "10:35", model.AppointmentStatusPending)))
	assert.NoError(t, repo.Create(ctx, newAppointment(doctorID, date, "11:10", model.AppointmentStatusCancelled)))
	assert.NoError(t, repo.Create(ctx, newAppointment(doctorID, date, "11:10", model.AppointmentStatusPending)))
}

func TestConcurrentCreateKeepsOneOccupant(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Appointments()
	doctorID := uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	const writers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newAppointment(doctorID, date, "09:00", model.AppointmentStatusPending))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, repository.ErrSlotTaken):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, writers-1, rejected)

	booked, err := repo.BookedTimes(ctx, doctorID, date, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, booked)
}

func TestConcurrentAcceptKeepsOneOccupant(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Appointments()
	doctorID := uuid.New()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// two non-occupying rows on one slot race to take it
	first := newAppointment(doctorID, date, "09:00", model.AppointmentStatusCancelled)
	second := newAppointment(doctorID, date, "09:00", model.AppointmentStatusCancelled)
	store.Put(first)
	store.Put(second)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, apt := range []*model.Appointment{first, second} {
		wg.Add(1)
		go func(i int, apt model.Appointment) {
			defer wg.Done()
			apt.Status = model.AppointmentStatusScheduled
			errs[i] = repo.UpdateIfStatus(ctx, &apt, model.AppointmentStatusCancelled)
		}(i, *apt)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repository.ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestUpdateIfStatusDetectsStaleState(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Appointments()
	apt := newAppointment(uuid.New(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "09:00", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(ctx, apt))

	update := *apt
	update.Status = model.AppointmentStatusScheduled
	err := repo.UpdateIfStatus(ctx, &update, model.AppointmentStatusScheduled)
	assert.ErrorIs(t, err, repository.ErrStaleState)

	stored, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, stored.Status)
}

func TestUpdateIfStatusExcludesSelf(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Appointments()
	apt := newAppointment(uuid.New(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "09:00", model.AppointmentStatusPending)
	require.NoError(t, repo.Create(ctx, apt))

	update := *apt
	update.Status = model.AppointmentStatusScheduled
	require.NoError(t, repo.UpdateIfStatus(ctx, &update, model.AppointmentStatusPending))

	stored, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, stored.Status)
}

func TestReminderCancelAndSweep(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Reminders()
	aptID := uuid.New()
	now := time.Now()

	due := &model.Reminder{AppointmentID: aptID, RecipientID: uuid.New(), SendAt: now.Add(-time.Minute), Channel: model.ChannelEmail}
	later := &model.Reminder{AppointmentID: aptID, RecipientID: uuid.New(), SendAt: now.Add(time.Hour), Channel: model.ChannelEmail}
	require.NoError(t, repo.Enqueue(ctx, due))
	require.NoError(t, repo.Enqueue(ctx, later))

	var sent []uuid.UUID
	n, err := repo.ProcessDue(ctx, now, 10, 3, func(r *model.Reminder) error {
		sent = append(sent, r.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{due.ID}, sent)

	cancelled, err := repo.CancelPending(ctx, aptID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	reminders, err := repo.ListByAppointment(ctx, aptID)
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	assert.Equal(t, model.ReminderStatusSent, reminders[0].Status)
	assert.Equal(t, model.ReminderStatusCancelled, reminders[1].Status)
}

func TestReminderSweepMarksFailedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Reminders()
	r := &model.Reminder{AppointmentID: uuid.New(), SendAt: time.Now().Add(-time.Minute), Channel: model.ChannelEmail}
	require.NoError(t, repo.Enqueue(ctx, r))

	fail := func(*model.Reminder) error { return errors.New("smtp down") }
	for i := 0; i < 2; i++ {
		_, err := repo.ProcessDue(ctx, time.Now(), 10, 2, fail)
		require.NoError(t, err)
	}

	reminders, err := repo.ListByAppointment(ctx, r.AppointmentID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, model.ReminderStatusFailed, reminders[0].Status)
	assert.Equal(t, 2, reminders[0].Attempts)
	require.NotNil(t, reminders[0].LastError)
	assert.Equal(t, "smtp down", *reminders[0].LastError)
}

func TestClinicalRecordCreateIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().ClinicalRecords()
	aptID := uuid.New()

	first, err := repo.CreateIfAbsent(ctx, &model.ClinicalRecord{AppointmentID: aptID})
	require.NoError(t, err)
	second, err := repo.CreateIfAbsent(ctx, &model.ClinicalRecord{AppointmentID: aptID})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.ClinicalRecordStatusDraft, second.Status)
}

func TestOpenForAppointmentWritesBothOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	apt := newAppointment(uuid.New(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "09:00", model.AppointmentStatusScheduled)
	require.NoError(t, store.Appointments().Create(ctx, apt))

	update := *apt
	update.Status = model.AppointmentStatusInProgress
	_, err := store.ClinicalRecords().OpenForAppointment(ctx, &update, model.AppointmentStatusPending,
		&model.ClinicalRecord{AppointmentID: apt.ID})
	assert.ErrorIs(t, err, repository.ErrStaleState)
	_, err = store.ClinicalRecords().GetByAppointment(ctx, apt.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	record, err := store.ClinicalRecords().OpenForAppointment(ctx, &update, model.AppointmentStatusScheduled,
		&model.ClinicalRecord{AppointmentID: apt.ID})
	require.NoError(t, err)
	assert.Equal(t, model.ClinicalRecordStatusDraft, record.Status)

	stored, err := store.Appointments().Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, stored.Status)
}

func TestPermissionGrants(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	user, resource := uuid.New(), uuid.New()
	store.Grant(user, "accept", resource)
	store.Grant(user, "*", uuid.Nil)

	perms := store.Permissions()
	ok, err := perms.HasPermission(ctx, user, "accept", resource)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = perms.HasPermission(ctx, user, "reject", uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = perms.HasPermission(ctx, uuid.New(), "accept", resource)
	require.NoError(t, err)
	assert.False(t, ok)
}
