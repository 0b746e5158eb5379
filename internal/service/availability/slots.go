package availability

import (
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

// BookedSet is the set of "HH:MM" start times already held on a date.
type BookedSet map[string]struct{}

func NewBookedSet(times []string) BookedSet {
	set := make(BookedSet, len(times))
	for _, t := range times {
		set[t] = struct{}{}
	}
	return set
}

func (b BookedSet) Has(t string) bool {
	_, ok := b[t]
	return ok
}

// GenerateSlots walks the working window of entry from StartTime in steps of
// SlotDuration+BufferTime and returns one slot per step, in ascending order.
// A slot that would end after EndTime is never emitted. The second return
// value is false when the entry is not a working day; the slot list is then
// empty.
func GenerateSlots(entry *model.WorkingScheduleEntry, booked BookedSet) ([]model.CandidateSlot, bool) {
	return generateSlots(entry, booked, noCutoff)
}

// noCutoff disables past-slot marking.
const noCutoff = timeofday.Minute(-1)

// generateSlots is GenerateSlots that also marks slots starting before
// notBefore as passed.
func generateSlots(entry *model.WorkingScheduleEntry, booked BookedSet, notBefore timeofday.Minute) ([]model.CandidateSlot, bool) {
	if entry == nil || !entry.IsWorking || entry.SlotDuration <= 0 {
		return []model.CandidateSlot{}, false
	}

	brk, hasBreak := entry.Break()
	slots := make([]model.CandidateSlot, 0, slotCapacity(entry))

	for cur := entry.StartTime; cur.Add(entry.SlotDuration) <= entry.EndTime; cur = cur.Add(entry.Step()) {
		slot := model.CandidateSlot{Time: cur.String(), Available: true}
		window := timeofday.Window{Start: cur, End: cur.Add(entry.SlotDuration)}

		switch {
		case hasBreak && window.Overlaps(brk):
			slot.Available = false
			slot.Reason = model.SlotReasonBreak
		case booked.Has(slot.Time):
			slot.Available = false
			slot.Reason = model.SlotReasonBooked
		case cur < notBefore:
			slot.Available = false
			slot.Reason = model.SlotReasonPassed
		}
		slots = append(slots, slot)

		// a zero step would never advance
		if entry.Step() <= 0 {
			break
		}
	}
	return slots, true
}

func slotCapacity(entry *model.WorkingScheduleEntry) int {
	if entry.Step() <= 0 {
		return 1
	}
	return entry.EndTime.Sub(entry.StartTime)/entry.Step() + 1
}
