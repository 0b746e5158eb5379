package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

// WorkingScheduleEntry is a doctor's recurring availability for one weekday.
type WorkingScheduleEntry struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Weekday         Weekday           `db:"weekday" json:"weekday"`
	IsWorking       bool              `db:"is_working" json:"is_working"`
	StartTime       timeofday.Minute  `db:"start_minute" json:"-"`
	EndTime         timeofday.Minute  `db:"end_minute" json:"-"`
	BreakStart      *timeofday.Minute `db:"break_start_minute" json:"-"`
	BreakEnd        *timeofday.Minute `db:"break_end_minute" json:"-"`
	SlotDuration    int               `db:"slot_duration_minutes" json:"slot_duration"`
	BufferTime      int               `db:"buffer_minutes" json:"buffer_time"`
	MaxAppointments int               `db:"max_appointments" json:"max_appointments"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// Hours is the working window [StartTime, EndTime].
func (e *WorkingScheduleEntry) Hours() timeofday.Window {
	return timeofday.Window{Start: e.StartTime, End: e.EndTime}
}

// Break returns the break window, if one is configured.
func (e *WorkingScheduleEntry) Break() (timeofday.Window, bool) {
	if e.BreakStart == nil || e.BreakEnd == nil {
		return timeofday.Window{}, false
	}
	return timeofday.Window{Start: *e.BreakStart, End: *e.BreakEnd}, true
}

// Step is the distance between consecutive slot starts.
func (e *WorkingScheduleEntry) Step() int {
	return e.SlotDuration + e.BufferTime
}

// Validate checks the entry invariants. Non-working days only need a valid weekday.
func (e *WorkingScheduleEntry) Validate() error {
	if !e.Weekday.Valid() {
		return fmt.Errorf("weekday is required")
	}
	if !e.IsWorking {
		return nil
	}
	if !e.StartTime.Valid() || !e.EndTime.Valid() {
		return fmt.Errorf("start and end time must be valid times of day")
	}
	if e.StartTime >= e.EndTime {
		return fmt.Errorf("start time %s must be before end time %s", e.StartTime, e.EndTime)
	}
	if (e.BreakStart == nil) != (e.BreakEnd == nil) {
		return fmt.Errorf("break start and break end must be set together")
	}
	if brk, ok := e.Break(); ok {
		if brk.Start >= brk.End {
			return fmt.Errorf("break start %s must be before break end %s", brk.Start, brk.End)
		}
		if !brk.Within(e.Hours()) {
			return fmt.Errorf("break %s-%s must lie within working hours %s-%s", brk.Start, brk.End, e.StartTime, e.EndTime)
		}
	}
	if e.SlotDuration <= 0 {
		return fmt.Errorf("slot duration must be positive")
	}
	if e.BufferTime < 0 {
		return fmt.Errorf("buffer time cannot be negative")
	}
	if e.MaxAppointments < 0 {
		return fmt.Errorf("max appointments cannot be negative")
	}
	return nil
}

// ScheduleEntryRequest is the wire shape of a working-schedule entry.
type ScheduleEntryRequest struct {
	IsWorking       bool   `json:"is_working"`
	StartTime       string `json:"start_time" binding:"required_if=IsWorking true,omitempty,hhmm"`
	EndTime         string `json:"end_time" binding:"required_if=IsWorking true,omitempty,hhmm"`
	BreakStart      string `json:"break_start" binding:"omitempty,hhmm"`
	BreakEnd        string `json:"break_end" binding:"omitempty,hhmm"`
	SlotDuration    int    `json:"slot_duration" binding:"required_if=IsWorking true,omitempty,min=5,max=480"`
	BufferTime      int    `json:"buffer_time" binding:"omitempty,min=0,max=240"`
	MaxAppointments int    `json:"max_appointments" binding:"omitempty,min=0"`
}

// ToEntry converts the request into a schedule entry for doctorID on day.
func (r *ScheduleEntryRequest) ToEntry(doctorID uuid.UUID, day Weekday) (*WorkingScheduleEntry, error) {
	entry := &WorkingScheduleEntry{
		DoctorID:        doctorID,
		Weekday:         day,
		IsWorking:       r.IsWorking,
		SlotDuration:    r.SlotDuration,
		BufferTime:      r.BufferTime,
		MaxAppointments: r.MaxAppointments,
	}
	if !r.IsWorking {
		return entry, nil
	}

	var err error
	if entry.StartTime, err = timeofday.Parse(r.StartTime); err != nil {
		return nil, err
	}
	if entry.EndTime, err = timeofday.Parse(r.EndTime); err != nil {
		return nil, err
	}
	if r.BreakStart != "" {
		bs, err := timeofday.Parse(r.BreakStart)
		if err != nil {
			return nil, err
		}
		entry.BreakStart = &bs
	}
	if r.BreakEnd != "" {
		be, err := timeofday.Parse(r.BreakEnd)
		if err != nil {
			return nil, err
		}
		entry.BreakEnd = &be
	}
	return entry, nil
}

// ScheduleEntryView is the read shape of an entry with formatted times.
type ScheduleEntryView struct {
	Weekday         Weekday `json:"weekday"`
	IsWorking       bool    `json:"is_working"`
	StartTime       string  `json:"start_time,omitempty"`
	EndTime         string  `json:"end_time,omitempty"`
	BreakStart      string  `json:"break_start,omitempty"`
	BreakEnd        string  `json:"break_end,omitempty"`
	SlotDuration    int     `json:"slot_duration,omitempty"`
	BufferTime      int     `json:"buffer_time,omitempty"`
	MaxAppointments int     `json:"max_appointments,omitempty"`
}

func (e *WorkingScheduleEntry) View() ScheduleEntryView {
	v := ScheduleEntryView{Weekday: e.Weekday, IsWorking: e.IsWorking}
	if !e.IsWorking {
		return v
	}
	v.StartTime = e.StartTime.String()
	v.EndTime = e.EndTime.String()
	if brk, ok := e.Break(); ok {
		v.BreakStart = brk.Start.String()
		v.BreakEnd = brk.End.String()
	}
	v.SlotDuration = e.SlotDuration
	v.BufferTime = e.BufferTime
	v.MaxAppointments = e.MaxAppointments
	return v
}
