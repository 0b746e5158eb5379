package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

// Candidate is a requested (doctor, date, time, duration). ExcludeID names
// the appointment being moved so it does not collide with itself.
type Candidate struct {
	DoctorID        uuid.UUID
	Date            time.Time
	Time            timeofday.Minute
	DurationMinutes int
	ExcludeID       uuid.UUID
}

// CheckWindow runs the schedule checks in order: working day, working hours,
// break. A nil entry counts as a non-working day. A zero duration means the
// entry's slot duration. It returns nil when the window fits.
func CheckWindow(entry *model.WorkingScheduleEntry, day model.Weekday, start timeofday.Minute, duration int) *errors.AppError {
	if entry == nil || !entry.IsWorking {
		return errors.New(errors.ErrNotWorkingDay,
			fmt.Sprintf("The doctor does not work on %s", day))
	}
	if duration <= 0 {
		duration = entry.SlotDuration
	}

	window := timeofday.Window{Start: start, End: start.Add(duration)}
	if !window.Within(entry.Hours()) {
		return errors.New(errors.ErrOutsideWorkingHours,
			fmt.Sprintf("%s-%s is outside working hours %s-%s",
				window.Start, window.End, entry.StartTime, entry.EndTime))
	}
	if brk, ok := entry.Break(); ok && window.Overlaps(brk) {
		return errors.New(errors.ErrDuringBreak,
			fmt.Sprintf("%s-%s overlaps the break %s-%s",
				window.Start, window.End, brk.Start, brk.End))
	}
	return nil
}

// Detector decides whether a candidate may be booked. Bookings are matched by
// exact start time on a fixed grid; appointments starting at different
// minutes are not checked for partial overlap.
type Detector struct {
	schedules    repository.ScheduleRepository
	appointments repository.AppointmentRepository
}

func NewDetector(schedules repository.ScheduleRepository, appointments repository.AppointmentRepository) *Detector {
	return &Detector{
		schedules:    schedules,
		appointments: appointments,
	}
}

// Validate returns nil when the candidate is accepted, or an AppError whose
// code is NOT_WORKING_DAY, OUTSIDE_WORKING_HOURS, DURING_BREAK or SLOT_TAKEN.
// Storage failures come back as INTERNAL_ERROR.
func (d *Detector) Validate(ctx context.Context, c Candidate) error {
	day := model.WeekdayOf(c.Date)
	entry, err := d.scheduleFor(ctx, c.DoctorID, day)
	if err != nil {
		return err
	}
	if rejection := CheckWindow(entry, day, c.Time, c.DurationMinutes); rejection != nil {
		return rejection
	}

	booked, err := d.appointments.BookedTimes(ctx, c.DoctorID, c.Date, c.ExcludeID)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to load booked times: %w", err))
	}
	if NewBookedSet(booked).Has(c.Time.String()) {
		return SlotTakenError(c.Date, c.Time.String())
	}
	return nil
}

// Entry returns the doctor's schedule for day, or nil when none is stored.
func (d *Detector) Entry(ctx context.Context, doctorID uuid.UUID, day model.Weekday) (*model.WorkingScheduleEntry, error) {
	return d.scheduleFor(ctx, doctorID, day)
}

func (d *Detector) scheduleFor(ctx context.Context, doctorID uuid.UUID, day model.Weekday) (*model.WorkingScheduleEntry, error) {
	entry, err := d.schedules.GetEntry(ctx, doctorID, day)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to load working schedule: %w", err))
	}
	return entry, nil
}

// SlotTakenError is the rejection returned when storage refuses a write
// because the slot became occupied after validation.
func SlotTakenError(date time.Time, at string) *errors.AppError {
	return errors.New(errors.ErrSlotTaken,
		fmt.Sprintf("%s at %s is already booked", timeofday.FormatDate(date), at))
}
