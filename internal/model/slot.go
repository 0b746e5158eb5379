package model

// CandidateSlot is one fixed-width window produced by the slot generator.
type CandidateSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

const (
	SlotReasonBreak  = "Break time"
	SlotReasonBooked = "Already booked"
	SlotReasonPassed = "Time has passed"
)

// DaySlots is the availability of one doctor on one date.
type DaySlots struct {
	Date    string          `json:"date"`
	Working bool            `json:"working"`
	Message string          `json:"message,omitempty"`
	Slots   []CandidateSlot `json:"slots"`
}

// SuggestionPriority ranks suggestions by how soon they are.
type SuggestionPriority string

const (
	PriorityHigh   SuggestionPriority = "high"
	PriorityMedium SuggestionPriority = "medium"
	PriorityLow    SuggestionPriority = "low"
)

// Rank orders priorities, high first.
func (p SuggestionPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// TimeSuggestion is an alternative time offered when a request is rejected.
type TimeSuggestion struct {
	Date      string             `json:"date"`
	Time      string             `json:"time"`
	Available bool               `json:"available"`
	Reason    string             `json:"reason"`
	Priority  SuggestionPriority `json:"priority"`
	// DeltaMinutes is the absolute distance from the requested time of day.
	DeltaMinutes int `json:"delta_minutes"`
	DayOffset    int `json:"day_offset"`
}
