package availability

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

func TestCheckWindowOrder(t *testing.T) {
	entry := mondayEntry(uuid.New())
	off := mondayEntry(uuid.New())
	off.IsWorking = false

	tests := []struct {
		name     string
		entry    *model.WorkingScheduleEntry
		start    string
		duration int
		want     errors.ErrorCode
	}{
		{name: "missing entry", entry: nil, start: "10:00", duration: 30, want: errors.ErrNotWorkingDay},
		{name: "day off wins over bad hours", entry: off, start: "23:00", duration: 30, want: errors.ErrNotWorkingDay},
		{name: "before opening", entry: entry, start: "08:45", duration: 30, want: errors.ErrOutsideWorkingHours},
		{name: "runs past closing", entry: entry, start: "16:45", duration: 30, want: errors.ErrOutsideWorkingHours},
		{name: "starts in break", entry: entry, start: "12:15", duration: 30, want: errors.ErrDuringBreak},
		{name: "runs into break", entry: entry, start: "11:45", duration: 30, want: errors.ErrDuringBreak},
		{name: "ends as break starts", entry: entry, start: "11:30", duration: 30},
		{name: "ends at closing", entry: entry, start: "16:30", duration: 30},
		{name: "zero duration uses slot duration", entry: entry, start: "16:45", duration: 0, want: errors.ErrOutsideWorkingHours},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckWindow(tt.entry, model.Monday, timeofday.MustParse(tt.start), tt.duration)
			if tt.want == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestDetectorValidate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	doctorID := uuid.New()
	require.NoError(t, store.Schedules().Upsert(ctx, mondayEntry(doctorID)))

	existing := &model.Appointment{
		PatientID: uuid.New(), DoctorID: doctorID, Date: monday, Time: "10:10",
		DurationMinutes: 30, Status: model.AppointmentStatusScheduled,
	}
	require.NoError(t, store.Appointments().Create(ctx, existing))

	detector := NewDetector(store.Schedules(), store.Appointments())

	t.Run("tuesday has no entry", func(t *testing.T) {
		err := detector.Validate(ctx, Candidate{DoctorID: doctorID, Date: monday.AddDate(0, 0, 1), Time: timeofday.MustParse("10:00")})
		assert.Equal(t, errors.ErrNotWorkingDay, errors.CodeOf(err))
	})

	t.Run("taken slot", func(t *testing.T) {
		err := detector.Validate(ctx, Candidate{DoctorID: doctorID, Date: monday, Time: timeofday.MustParse("10:10"), DurationMinutes: 30})
		assert.Equal(t, errors.ErrSlotTaken, errors.CodeOf(err))
		assert.ErrorIs(t, err, errors.SlotTaken)
	})

	t.Run("own slot is not a clash", func(t *testing.T) {
		err := detector.Validate(ctx, Candidate{DoctorID: doctorID, Date: monday, Time: timeofday.MustParse("10:10"), DurationMinutes: 30, ExcludeID: existing.ID})
		assert.NoError(t, err)
	})

	t.Run("partial overlap at another minute is accepted", func(t *testing.T) {
		err := detector.Validate(ctx, Candidate{DoctorID: doctorID, Date: monday, Time: timeofday.MustParse("10:20"), DurationMinutes: 30})
		assert.NoError(t, err)
	})

	t.Run("cancelled appointments free the slot", func(t *testing.T) {
		cancelled := &model.Appointment{
			PatientID: uuid.New(), DoctorID: doctorID, Date: monday, Time: "14:15",
			DurationMinutes: 30, Status: model.AppointmentStatusCancelled,
		}
		require.NoError(t, store.Appointments().Create(ctx, cancelled))
		err := detector.Validate(ctx, Candidate{DoctorID: doctorID, Date: monday, Time: timeofday.MustParse("14:15")})
		assert.NoError(t, err)
	})
}
