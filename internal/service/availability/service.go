package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/permission"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

type Options struct {
	// Location is the clinic timezone used to decide what "today" is.
	Location             *time.Location
	DefaultLookAheadDays int
	MaxLookAheadDays     int
}

// Service answers availability questions and manages working schedules.
type Service struct {
	schedules    repository.ScheduleRepository
	appointments repository.AppointmentRepository
	directory    repository.DirectoryRepository
	authz        permission.Authorizer
	detector     *Detector
	opts         Options
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(
	schedules repository.ScheduleRepository,
	appointments repository.AppointmentRepository,
	directory repository.DirectoryRepository,
	authz permission.Authorizer,
	opts Options,
	m *metrics.Metrics,
) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxLookAheadDays <= 0 {
		opts.MaxLookAheadDays = 30
	}
	if opts.DefaultLookAheadDays <= 0 || opts.DefaultLookAheadDays > opts.MaxLookAheadDays {
		opts.DefaultLookAheadDays = 7
	}
	return &Service{
		schedules:    schedules,
		appointments: appointments,
		directory:    directory,
		authz:        authz,
		detector:     NewDetector(schedules, appointments),
		opts:         opts,
		metrics:      m,
		now:          time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Detector() *Detector {
	return s.detector
}

func (s *Service) DefaultLookAheadDays() int {
	return s.opts.DefaultLookAheadDays
}

// Today is the current calendar date in the clinic timezone.
func (s *Service) Today() time.Time {
	return timeofday.Date(s.now().In(s.opts.Location))
}

// cutoff returns the earliest bookable minute on date: none for future days,
// the current minute today, and past the end of day for earlier dates.
func (s *Service) cutoff(date time.Time) timeofday.Minute {
	local := s.now().In(s.opts.Location)
	today := timeofday.Date(local)
	switch {
	case date.Before(today):
		return timeofday.MinutesPerDay
	case date.Equal(today):
		return timeofday.FromClock(local)
	default:
		return noCutoff
	}
}

func (s *Service) EnsureDoctor(ctx context.Context, doctorID uuid.UUID) error {
	if doctorID == uuid.Nil {
		return errors.NewValidation("doctor id is required", nil)
	}
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errors.NewNotFound("doctor", err)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetAvailableSlots lists the slots of doctorID on date. Slots on today that
// already started are marked as passed.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.DaySlots, error) {
	if err := s.EnsureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	s.metrics.ObserveSlotQuery()

	day := model.WeekdayOf(date)
	entry, err := s.detector.scheduleFor(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}

	result := &model.DaySlots{Date: timeofday.FormatDate(date), Slots: []model.CandidateSlot{}}
	if entry == nil || !entry.IsWorking {
		result.Message = fmt.Sprintf("The doctor is not available on %s", day)
		return result, nil
	}

	booked, err := s.appointments.BookedTimes(ctx, doctorID, date, uuid.Nil)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to load booked times: %w", err))
	}

	result.Slots, result.Working = generateSlots(entry, NewBookedSet(booked), s.cutoff(date))
	return result, nil
}

// GetSuggestions scans date and the following lookAheadDays days for open
// times near requested, ordered by priority tier, day, then closeness.
func (s *Service) GetSuggestions(ctx context.Context, doctorID uuid.UUID, date time.Time, requested timeofday.Minute, lookAheadDays int) ([]model.TimeSuggestion, error) {
	if lookAheadDays < 0 || lookAheadDays > s.opts.MaxLookAheadDays {
		return nil, errors.NewValidation(
			fmt.Sprintf("look ahead days must be between 0 and %d", s.opts.MaxLookAheadDays), nil)
	}
	if !requested.Valid() {
		return nil, errors.NewValidation("requested time must be a valid time of day", nil)
	}
	if err := s.EnsureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	entries := make(map[model.Weekday]*model.WorkingScheduleEntry)
	suggestions := []model.TimeSuggestion{}

	for offset := 0; offset <= lookAheadDays; offset++ {
		day := date.AddDate(0, 0, offset)
		notBefore := s.cutoff(day)
		if notBefore >= timeofday.MinutesPerDay {
			continue
		}

		weekday := model.WeekdayOf(day)
		entry, seen := entries[weekday]
		if !seen {
			var err error
			if entry, err = s.detector.scheduleFor(ctx, doctorID, weekday); err != nil {
				return nil, err
			}
			entries[weekday] = entry
		}
		if entry == nil || !entry.IsWorking {
			continue
		}

		booked, err := s.appointments.BookedTimes(ctx, doctorID, day, uuid.Nil)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to load booked times: %w", err))
		}
		suggestions = append(suggestions,
			SuggestForDay(entry, NewBookedSet(booked), day, offset, requested, notBefore)...)
	}

	SortSuggestions(suggestions)
	s.metrics.ObserveSuggestions(len(suggestions))
	return suggestions, nil
}

// GetWeeklySchedule returns all seven days; days without a stored entry are
// reported as not working.
func (s *Service) GetWeeklySchedule(ctx context.Context, doctorID uuid.UUID) ([]model.ScheduleEntryView, error) {
	if err := s.EnsureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	entries, err := s.schedules.ListEntries(ctx, doctorID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	byDay := make(map[model.Weekday]*model.WorkingScheduleEntry, len(entries))
	for _, e := range entries {
		byDay[e.Weekday] = e
	}

	week := make([]model.ScheduleEntryView, 0, len(model.AllWeekdays))
	for _, day := range model.AllWeekdays {
		if e, ok := byDay[day]; ok {
			week = append(week, e.View())
			continue
		}
		week = append(week, model.ScheduleEntryView{Weekday: day})
	}
	return week, nil
}

// UpsertSchedule validates and stores one weekday entry on behalf of actorID.
func (s *Service) UpsertSchedule(ctx context.Context, actorID uuid.UUID, entry *model.WorkingScheduleEntry) error {
	if err := entry.Validate(); err != nil {
		return errors.NewValidation(err.Error(), err)
	}
	if err := s.EnsureDoctor(ctx, entry.DoctorID); err != nil {
		return err
	}

	ok, err := s.authz.IsAuthorized(ctx, actorID, permission.ActionScheduleUpdate, entry.DoctorID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if !ok {
		return errors.New(errors.ErrUnauthorized, "you are not allowed to change this working schedule")
	}

	if err := s.schedules.Upsert(ctx, entry); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
