package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/service/permission"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

type fixture struct {
	store    *memory.Store
	authz    *permission.Service
	svc      *Service
	doctorID uuid.UUID
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	store := memory.NewStore()
	doctorID := uuid.New()
	store.AddDoctor(model.Person{ID: doctorID, Name: "Dr. Ada Byron", Email: "ada@clinic.test"})
	require.NoError(t, store.Schedules().Upsert(context.Background(), mondayEntry(doctorID)))

	authz := permission.NewService(store.Permissions(), permission.DefaultConfig())
	svc := NewService(store.Schedules(), store.Appointments(), store.Directory(), authz,
		Options{Location: time.UTC, DefaultLookAheadDays: 7, MaxLookAheadDays: 30}, nil).
		WithClock(func() time.Time { return now })

	return &fixture{store: store, authz: authz, svc: svc, doctorID: doctorID}
}

func (f *fixture) book(t *testing.T, date time.Time, at string, status model.AppointmentStatus) *model.Appointment {
	t.Helper()
	apt := &model.Appointment{
		PatientID: uuid.New(), DoctorID: f.doctorID, Date: date, Time: at,
		DurationMinutes: 30, Status: status,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), apt))
	return apt
}

func TestGetAvailableSlots(t *testing.T) {
	f := newFixture(t, monday.AddDate(0, 0, -1))
	f.book(t, monday, "09:35", model.AppointmentStatusPending)

	day, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday)
	require.NoError(t, err)
	assert.True(t, day.Working)
	assert.Equal(t, "2026-03-02", day.Date)
	require.Len(t, day.Slots, 13)
	assert.True(t, day.Slots[0].Available)
	assert.Equal(t, model.SlotReasonBooked, day.Slots[1].Reason)
}

func TestGetAvailableSlotsToday(t *testing.T) {
	f := newFixture(t, monday.Add(10*time.Hour+20*time.Minute))

	day, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday)
	require.NoError(t, err)
	assert.Equal(t, model.SlotReasonPassed, day.Slots[2].Reason)
	assert.True(t, day.Slots[3].Available)
}

func TestGetAvailableSlotsNotWorking(t *testing.T) {
	f := newFixture(t, monday)

	day, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, day.Working)
	assert.Empty(t, day.Slots)
	assert.Contains(t, day.Message, "tuesday")
}

func TestGetAvailableSlotsUnknownDoctor(t *testing.T) {
	f := newFixture(t, monday)

	_, err := f.svc.GetAvailableSlots(context.Background(), uuid.New(), monday)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestGetSuggestionsTopIsClosestHigh(t *testing.T) {
	f := newFixture(t, monday.AddDate(0, 0, -1))
	f.book(t, monday, "10:00", model.AppointmentStatusScheduled)

	got, err := f.svc.GetSuggestions(context.Background(), f.doctorID, monday, timeofday.MustParse("10:00"), 7)
	require.NoError(t, err)
	require.Len(t, got, 20)

	top := got[0]
	assert.Equal(t, model.PriorityHigh, top.Priority)
	assert.Equal(t, "2026-03-02", top.Date)
	for _, s := range got {
		if s.Date == top.Date {
			assert.GreaterOrEqual(t, s.DeltaMinutes, top.DeltaMinutes)
		}
	}

	// the next monday is offset 7, where 10:00 is free
	last := got[10]
	assert.Equal(t, "2026-03-09", last.Date)
	assert.Equal(t, model.PriorityLow, last.Priority)
	assert.Equal(t, LabelExact, last.Reason)
}

func TestGetSuggestionsSkipsPastDays(t *testing.T) {
	f := newFixture(t, monday.AddDate(0, 0, 8))

	got, err := f.svc.GetSuggestions(context.Background(), f.doctorID, monday, timeofday.MustParse("10:00"), 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetSuggestionsValidatesLookAhead(t *testing.T) {
	f := newFixture(t, monday)

	_, err := f.svc.GetSuggestions(context.Background(), f.doctorID, monday, timeofday.MustParse("10:00"), 31)
	assert.Equal(t, errors.ErrValidation, errors.CodeOf(err))

	_, err = f.svc.GetSuggestions(context.Background(), f.doctorID, monday, timeofday.MustParse("10:00"), -1)
	assert.Equal(t, errors.ErrValidation, errors.CodeOf(err))
}

func TestWeeklySchedule(t *testing.T) {
	f := newFixture(t, monday)

	week, err := f.svc.GetWeeklySchedule(context.Background(), f.doctorID)
	require.NoError(t, err)
	require.Len(t, week, 7)
	assert.Equal(t, model.Monday, week[0].Weekday)
	assert.True(t, week[0].IsWorking)
	assert.Equal(t, "12:00", week[0].BreakStart)
	assert.False(t, week[6].IsWorking)
}

func TestUpsertSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, monday)
	admin := uuid.New()

	tuesday := mondayEntry(f.doctorID)
	tuesday.Weekday = model.Tuesday

	err := f.svc.UpsertSchedule(ctx, admin, tuesday)
	assert.Equal(t, errors.ErrUnauthorized, errors.CodeOf(err))

	f.store.Grant(admin, permission.ActionScheduleUpdate, uuid.Nil)
	f.authz.Invalidate()
	require.NoError(t, f.svc.UpsertSchedule(ctx, admin, tuesday))

	entry, err := f.store.Schedules().GetEntry(ctx, f.doctorID, model.Tuesday)
	require.NoError(t, err)
	assert.True(t, entry.IsWorking)

	bad := mondayEntry(f.doctorID)
	bad.BreakStart = minutePtr("08:00")
	err = f.svc.UpsertSchedule(ctx, admin, bad)
	assert.Equal(t, errors.ErrValidation, errors.CodeOf(err))
}
