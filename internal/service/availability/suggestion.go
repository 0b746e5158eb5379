package availability

import (
	"sort"
	"time"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

const (
	// suggestionRadius bounds candidates to requested±radius minutes.
	suggestionRadius = 120
	// suggestionStep is finer than any slot duration to surface near misses.
	suggestionStep       = 15
	maxSuggestionsPerDay = 10
)

const (
	LabelExact       = "Exact time requested"
	LabelVeryClose   = "Very close to requested time"
	LabelClose       = "Close to requested time"
	LabelAlternative = "Alternative time slot"
)

// PriorityFor maps a day offset from the requested date to a tier.
func PriorityFor(dayOffset int) model.SuggestionPriority {
	switch {
	case dayOffset <= 2:
		return model.PriorityHigh
	case dayOffset <= 5:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func labelFor(delta int) string {
	switch {
	case delta == 0:
		return LabelExact
	case delta <= 15:
		return LabelVeryClose
	case delta <= 30:
		return LabelClose
	default:
		return LabelAlternative
	}
}

// SuggestForDay scans requested±120 minutes in 15 minute steps on one day and
// keeps the candidates that fit: inside working hours with room for the slot
// and its buffer before closing, clear of the break, not booked, and not
// before notBefore. At most ten are returned, closest first.
func SuggestForDay(entry *model.WorkingScheduleEntry, booked BookedSet, date time.Time, dayOffset int, requested, notBefore timeofday.Minute) []model.TimeSuggestion {
	if entry == nil || !entry.IsWorking || entry.SlotDuration <= 0 {
		return nil
	}

	brk, hasBreak := entry.Break()
	priority := PriorityFor(dayOffset)
	dateStr := timeofday.FormatDate(date)

	var out []model.TimeSuggestion
	for offset := -suggestionRadius; offset <= suggestionRadius; offset += suggestionStep {
		t := requested.Add(offset)
		if t < entry.StartTime || t > entry.EndTime || t < notBefore {
			continue
		}
		if t.Add(entry.SlotDuration+entry.BufferTime) > entry.EndTime {
			continue
		}
		if hasBreak && (timeofday.Window{Start: t, End: t.Add(entry.SlotDuration)}).Overlaps(brk) {
			continue
		}
		if booked.Has(t.String()) {
			continue
		}

		delta := offset
		if delta < 0 {
			delta = -delta
		}
		out = append(out, model.TimeSuggestion{
			Date:         dateStr,
			Time:         t.String(),
			Available:    true,
			Reason:       labelFor(delta),
			Priority:     priority,
			DeltaMinutes: delta,
			DayOffset:    dayOffset,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DeltaMinutes != out[j].DeltaMinutes {
			return out[i].DeltaMinutes < out[j].DeltaMinutes
		}
		return out[i].Time < out[j].Time
	})
	if len(out) > maxSuggestionsPerDay {
		out = out[:maxSuggestionsPerDay]
	}
	return out
}

// SortSuggestions orders by priority tier, then day, then distance from the
// requested time, then time of day. Within the requested date the closest
// candidate therefore comes first.
func SortSuggestions(s []model.TimeSuggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.DayOffset != b.DayOffset {
			return a.DayOffset < b.DayOffset
		}
		if a.DeltaMinutes != b.DeltaMinutes {
			return a.DeltaMinutes < b.DeltaMinutes
		}
		return a.Time < b.Time
	})
}
