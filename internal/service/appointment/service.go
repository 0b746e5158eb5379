package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/service/availability"
	"github.com/jwalitptl/scheduling-api/internal/service/permission"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

const defaultAppointmentType = "consultation"

// Dispatcher delivers the events of a committed transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []model.Event)
}

type Config struct {
	// Location is the clinic timezone appointment dates and times are in.
	Location *time.Location
	// ReminderOffsets are how long before the start reminders are sent.
	ReminderOffsets  []time.Duration
	ReminderChannels []string
	// DefaultDurationMinutes applies when neither the request nor the
	// doctor's schedule gives a duration.
	DefaultDurationMinutes int
}

func DefaultConfig() Config {
	return Config{
		Location:               time.UTC,
		ReminderOffsets:        []time.Duration{24 * time.Hour, time.Hour},
		ReminderChannels:       []string{model.ChannelEmail},
		DefaultDurationMinutes: 30,
	}
}

type Service struct {
	appointments repository.AppointmentRepository
	records      repository.ClinicalRecordRepository
	directory    repository.DirectoryRepository
	availability *availability.Service
	authz        permission.Authorizer
	dispatcher   Dispatcher
	cfg          Config
	log          *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(
	appointments repository.AppointmentRepository,
	records repository.ClinicalRecordRepository,
	directory repository.DirectoryRepository,
	avail *availability.Service,
	authz permission.Authorizer,
	dispatcher Dispatcher,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultDurationMinutes <= 0 {
		cfg.DefaultDurationMinutes = 30
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		appointments: appointments,
		records:      records,
		directory:    directory,
		availability: avail,
		authz:        authz,
		dispatcher:   dispatcher,
		cfg:          cfg,
		log:          log,
		metrics:      m,
		now:          time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestInput is a parsed booking request.
type RequestInput struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	Date            time.Time
	Time            timeofday.Minute
	DurationMinutes int
	Type            string
	Reason          string
}

// RequestAppointment books a PENDING appointment after a conflict check.
func (s *Service) RequestAppointment(ctx context.Context, actorID uuid.UUID, in RequestInput) (*model.Appointment, error) {
	if in.PatientID == uuid.Nil || in.DoctorID == uuid.Nil {
		return nil, errors.NewValidation("patient id and doctor id are required", nil)
	}
	if !in.Time.Valid() {
		return nil, errors.NewValidation("time must be a valid time of day", nil)
	}
	if !in.Time.On(in.Date, s.cfg.Location).After(s.now()) {
		return nil, errors.NewValidation("appointment time must be in the future", nil)
	}

	if err := s.authorize(ctx, actorID, ActionRequest, permission.ActionRequest, in.PatientID); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetPatient(ctx, in.PatientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("patient", err)
		}
		return nil, errors.NewInternal(err)
	}
	if err := s.availability.EnsureDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	duration, err := s.durationFor(ctx, in.DoctorID, in.Date, in.DurationMinutes)
	if err != nil {
		return nil, err
	}

	candidate := availability.Candidate{
		DoctorID:        in.DoctorID,
		Date:            in.Date,
		Time:            in.Time,
		DurationMinutes: duration,
	}
	if err := s.availability.Detector().Validate(ctx, candidate); err != nil {
		return nil, s.rejected(ActionRequest, err)
	}

	apptType := in.Type
	if apptType == "" {
		apptType = defaultAppointmentType
	}
	apt := &model.Appointment{
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		Date:            timeofday.Date(in.Date),
		Time:            in.Time.String(),
		DurationMinutes: duration,
		Status:          model.AppointmentStatusPending,
		Type:            apptType,
		Reason:          strings.TrimSpace(in.Reason),
	}

	if err := s.appointments.Create(ctx, apt); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, s.rejected(ActionRequest, availability.SlotTakenError(apt.Date, apt.Time))
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create appointment: %w", err))
	}

	s.commit(ctx, actorID, ActionRequest, "", apt, nil)
	return apt, nil
}

func (s *Service) durationFor(ctx context.Context, doctorID uuid.UUID, date time.Time, requested int) (int, error) {
	if requested > 0 {
		return requested, nil
	}
	entry, err := s.availability.Detector().Entry(ctx, doctorID, model.WeekdayOf(date))
	if err != nil {
		return 0, err
	}
	if entry != nil && entry.SlotDuration > 0 {
		return entry.SlotDuration, nil
	}
	return s.cfg.DefaultDurationMinutes, nil
}

// Accept moves a PENDING appointment to SCHEDULED and plans its reminders.
// A request whose time has already passed cannot be accepted.
func (s *Service) Accept(ctx context.Context, actorID, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, actorID, id, ActionAccept, permission.ActionAccept, func(apt *model.Appointment) error {
		at, err := timeofday.Parse(apt.Time)
		if err != nil {
			return errors.NewInternal(fmt.Errorf("stored appointment time %q: %w", apt.Time, err))
		}
		if !at.On(apt.Date, s.cfg.Location).After(s.now()) {
			return errors.NewValidation("the requested time has already passed", nil)
		}
		return nil
	})
}

// Reject cancels a PENDING appointment and keeps the reason.
func (s *Service) Reject(ctx context.Context, actorID, id uuid.UUID, reason string) (*model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.NewValidation("a rejection reason is required", nil)
	}
	return s.transition(ctx, actorID, id, ActionReject, permission.ActionReject, func(apt *model.Appointment) error {
		apt.CancelReason = &reason
		return nil
	})
}

// Reschedule moves a PENDING or SCHEDULED appointment to a new date and time
// without changing its status.
func (s *Service) Reschedule(ctx context.Context, actorID, id uuid.UUID, date time.Time, at timeofday.Minute) (*model.Appointment, error) {
	if !at.Valid() {
		return nil, errors.NewValidation("time must be a valid time of day", nil)
	}
	if !at.On(date, s.cfg.Location).After(s.now()) {
		return nil, errors.NewValidation("appointment time must be in the future", nil)
	}
	return s.transition(ctx, actorID, id, ActionReschedule, permission.ActionReschedule, func(apt *model.Appointment) error {
		apt.Date = timeofday.Date(date)
		apt.Time = at.String()
		return nil
	})
}

// Consultation is the result of starting a consultation.
type Consultation struct {
	Appointment *model.Appointment `json:"appointment"`
	RecordID    uuid.UUID          `json:"clinical_record_id"`
}

// StartConsultation moves a SCHEDULED appointment to IN_PROGRESS and links a
// clinical record in the same write. Calling it again while IN_PROGRESS
// returns the same record.
func (s *Service) StartConsultation(ctx context.Context, actorID, id uuid.UUID) (*Consultation, error) {
	if err := s.authorize(ctx, actorID, ActionStartConsultation, permission.ActionStartConsultation, id); err != nil {
		return nil, err
	}

	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.Status == model.AppointmentStatusInProgress {
		record, err := s.records.CreateIfAbsent(ctx, newRecord(apt))
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to link clinical record: %w", err))
		}
		return &Consultation{Appointment: apt, RecordID: record.ID}, nil
	}

	var record *model.ClinicalRecord
	open := func(ctx context.Context, updated *model.Appointment, expected model.AppointmentStatus) error {
		var err error
		record, err = s.records.OpenForAppointment(ctx, updated, expected, newRecord(updated))
		return err
	}
	if apt, err = s.applyWith(ctx, actorID, apt, ActionStartConsultation, nil, open); err != nil {
		return nil, err
	}
	return &Consultation{Appointment: apt, RecordID: record.ID}, nil
}

func newRecord(apt *model.Appointment) *model.ClinicalRecord {
	return &model.ClinicalRecord{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		DoctorID:      apt.DoctorID,
		Status:        model.ClinicalRecordStatusDraft,
	}
}

// CompleteConsultation moves an IN_PROGRESS appointment to COMPLETED.
func (s *Service) CompleteConsultation(ctx context.Context, actorID, id uuid.UUID) (*model.Appointment, error) {
	return s.transition(ctx, actorID, id, ActionComplete, permission.ActionComplete, nil)
}

// CancelConsultation cancels an IN_PROGRESS appointment and keeps the reason.
func (s *Service) CancelConsultation(ctx context.Context, actorID, id uuid.UUID, reason string) (*model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.NewValidation("a cancellation reason is required", nil)
	}
	return s.transition(ctx, actorID, id, ActionCancelConsultation, permission.ActionCancelConsultation, func(apt *model.Appointment) error {
		apt.CancelReason = &reason
		return nil
	})
}

// Cancel withdraws a PENDING or SCHEDULED appointment.
func (s *Service) Cancel(ctx context.Context, actorID, id uuid.UUID, reason string) (*model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actorID, id, ActionCancel, permission.ActionCancel, func(apt *model.Appointment) error {
		if reason != "" {
			apt.CancelReason = &reason
		}
		return nil
	})
}

func (s *Service) GetAppointment(ctx context.Context, actorID, id uuid.UUID) (*model.Appointment, error) {
	if err := s.authorize(ctx, actorID, "", permission.ActionView, id); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// SlotOf returns the doctor, date and time an appointment holds. It skips the
// view check so a rejected action can still be answered with alternatives.
func (s *Service) SlotOf(ctx context.Context, id uuid.UUID) (uuid.UUID, time.Time, timeofday.Minute, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return uuid.Nil, time.Time{}, 0, err
	}
	at, err := timeofday.Parse(apt.Time)
	if err != nil {
		return uuid.Nil, time.Time{}, 0, errors.NewInternal(fmt.Errorf("stored appointment time %q: %w", apt.Time, err))
	}
	return apt.DoctorID, apt.Date, at, nil
}

// ListAppointments lists a doctor's appointments, optionally on one date.
func (s *Service) ListAppointments(ctx context.Context, actorID uuid.UUID, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters == nil || filters.DoctorID == uuid.Nil {
		return nil, errors.NewValidation("doctor id is required", nil)
	}
	if err := s.authorize(ctx, actorID, "", permission.ActionView, filters.DoctorID); err != nil {
		return nil, err
	}
	appointments, err := s.appointments.List(ctx, filters)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to list appointments: %w", err))
	}
	return appointments, nil
}

// transition runs one guarded lifecycle operation: authorize, load, check the
// state rule, then apply.
func (s *Service) transition(ctx context.Context, actorID, id uuid.UUID, action Action, perm string, mutate func(*model.Appointment) error) (*model.Appointment, error) {
	if err := s.authorize(ctx, actorID, action, perm, id); err != nil {
		return nil, err
	}
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actorID, apt, action, mutate)
}

// writeFunc stores updated only if the stored status still equals expected.
type writeFunc func(ctx context.Context, updated *model.Appointment, expected model.AppointmentStatus) error

func (s *Service) apply(ctx context.Context, actorID uuid.UUID, apt *model.Appointment, action Action, mutate func(*model.Appointment) error) (*model.Appointment, error) {
	return s.applyWith(ctx, actorID, apt, action, mutate, s.appointments.UpdateIfStatus)
}

// applyWith computes the next state of apt, runs the conflict detector when
// the action needs it and stores the result with write. Events are
// dispatched only after the write succeeded.
func (s *Service) applyWith(ctx context.Context, actorID uuid.UUID, apt *model.Appointment, action Action, mutate func(*model.Appointment) error, write writeFunc) (*model.Appointment, error) {
	next, err := Next(apt.Status, action)
	if err != nil {
		s.metrics.ObserveRejection(string(action), string(errors.CodeOf(err)))
		return nil, err
	}

	updated := *apt
	if mutate != nil {
		if err := mutate(&updated); err != nil {
			return nil, err
		}
	}
	updated.Status = next

	if requiresValidation(action) {
		at, err := timeofday.Parse(updated.Time)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("stored appointment time %q: %w", updated.Time, err))
		}
		candidate := availability.Candidate{
			DoctorID:        updated.DoctorID,
			Date:            updated.Date,
			Time:            at,
			DurationMinutes: updated.DurationMinutes,
			ExcludeID:       updated.ID,
		}
		if err := s.availability.Detector().Validate(ctx, candidate); err != nil {
			return nil, s.rejected(action, err)
		}
	}

	if err := write(ctx, &updated, apt.Status); err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotTaken):
			return nil, s.rejected(action, availability.SlotTakenError(updated.Date, updated.Time))
		case errors.Is(err, repository.ErrStaleState):
			return nil, s.staleTransition(ctx, apt.ID, action)
		case errors.Is(err, repository.ErrNotFound):
			return nil, errors.NewNotFound("appointment", err)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to update appointment: %w", err))
	}

	s.commit(ctx, actorID, action, apt.Status, &updated, apt)
	return &updated, nil
}

// staleTransition reports a lost race against another writer in terms of the
// status that won.
func (s *Service) staleTransition(ctx context.Context, id uuid.UUID, action Action) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := Next(current.Status, action); err != nil {
		return err
	}
	return errors.New(errors.ErrInvalidStateTransition, "the appointment changed while you were editing it, please retry")
}

// commit builds the events of a successful write and hands them to the dispatcher.
func (s *Service) commit(ctx context.Context, actorID uuid.UUID, action Action, from model.AppointmentStatus, apt, before *model.Appointment) {
	now := s.now()
	meta := model.JSONMap{
		"to":   apt.Status,
		"date": apt.DateString(),
		"time": apt.Time,
	}
	if from != "" {
		meta["from"] = from
	}
	if before != nil && (before.DateString() != apt.DateString() || before.Time != apt.Time) {
		meta["previous_date"] = before.DateString()
		meta["previous_time"] = before.Time
	}
	if apt.CancelReason != nil {
		meta["reason"] = *apt.CancelReason
	}

	var events []model.Event
	switch {
	case action == ActionReschedule:
		events = append(events, model.Event{Kind: model.EventRemindersCancelled, AppointmentID: apt.ID, OccurredAt: now})
		if apt.Status == model.AppointmentStatusScheduled {
			events = append(events, s.reminders(apt, now)...)
		}
	case action == ActionAccept:
		events = append(events, s.reminders(apt, now)...)
	case apt.Status == model.AppointmentStatusCancelled:
		events = append(events, model.Event{Kind: model.EventRemindersCancelled, AppointmentID: apt.ID, OccurredAt: now})
	}

	events = append(events,
		model.Event{
			Kind:          model.EventAudit,
			AppointmentID: apt.ID,
			ActorID:       actorID,
			Action:        string(action),
			Status:        apt.Status,
			Metadata:      meta,
			OccurredAt:    now,
		},
		model.Event{
			Kind:          model.EventAppointmentChanged,
			AppointmentID: apt.ID,
			ActorID:       actorID,
			Action:        string(action),
			Status:        apt.Status,
			Metadata:      meta,
			OccurredAt:    now,
		},
	)

	s.metrics.ObserveTransition(string(action), string(apt.Status))
	s.log.Info("appointment transition",
		"appointment_id", apt.ID.String(),
		"action", string(action),
		"status", string(apt.Status),
	)
	s.dispatcher.Dispatch(ctx, events)
}

func (s *Service) reminders(apt *model.Appointment, now time.Time) []model.Event {
	at, err := timeofday.Parse(apt.Time)
	if err != nil {
		s.log.Error(err, "cannot plan reminders for appointment", "appointment_id", apt.ID.String())
		return nil
	}
	start := at.On(apt.Date, s.cfg.Location)
	return planReminders(apt, start, now, s.cfg.ReminderOffsets, s.cfg.ReminderChannels)
}

// authorize asks the permission collaborator before anything is read or
// written. action is only used for metrics and may be empty.
func (s *Service) authorize(ctx context.Context, actorID uuid.UUID, action Action, perm string, resourceID uuid.UUID) error {
	ok, err := s.authz.IsAuthorized(ctx, actorID, perm, resourceID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if !ok {
		if action != "" {
			s.metrics.ObserveRejection(string(action), string(errors.ErrUnauthorized))
		}
		verb := verbs[action]
		if verb == "" {
			verb = "view"
		}
		if action == ActionRequest {
			verb = "book"
		}
		return errors.NewUnauthorized(verb)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("appointment", err)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to load appointment: %w", err))
	}
	return apt, nil
}

// rejected counts business-rule rejections and passes err through.
func (s *Service) rejected(action Action, err error) error {
	code := errors.CodeOf(err)
	if code.IsSchedulingRejection() {
		s.metrics.ObserveRejection(string(action), string(code))
	}
	return err
}
