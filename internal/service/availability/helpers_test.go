package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

// monday is 2026-03-02.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func minutePtr(s string) *timeofday.Minute {
	m := timeofday.MustParse(s)
	return &m
}

// mondayEntry works 09:00-17:00 with a 12:00-13:00 break, 30 minute slots
// and a 5 minute buffer.
func mondayEntry(doctorID uuid.UUID) *model.WorkingScheduleEntry {
	return &model.WorkingScheduleEntry{
		DoctorID:     doctorID,
		Weekday:      model.Monday,
		IsWorking:    true,
		StartTime:    timeofday.MustParse("09:00"),
		EndTime:      timeofday.MustParse("17:00"),
		BreakStart:   minutePtr("12:00"),
		BreakEnd:     minutePtr("13:00"),
		SlotDuration: 30,
		BufferTime:   5,
	}
}

func slotTimes(slots []model.CandidateSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}
