// Package memory is an in-process implementation of the repository
// interfaces. It keeps the same atomic check-then-write contract as the
// Postgres store and backs tests and the local CLI.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type scheduleKey struct {
	doctorID uuid.UUID
	day      model.Weekday
}

type grant struct {
	userID     uuid.UUID
	action     string
	resourceID uuid.UUID
}

// Store holds every table behind one mutex.
type Store struct {
	mu           sync.Mutex
	schedules    map[scheduleKey]model.WorkingScheduleEntry
	appointments map[uuid.UUID]model.Appointment
	reminders    map[uuid.UUID]model.Reminder
	records      map[uuid.UUID]model.ClinicalRecord
	outbox       []model.OutboxEvent
	audit        []model.AuditLog
	patients     map[uuid.UUID]model.Person
	doctors      map[uuid.UUID]model.Person
	grants       []grant
}

func NewStore() *Store {
	return &Store{
		schedules:    make(map[scheduleKey]model.WorkingScheduleEntry),
		appointments: make(map[uuid.UUID]model.Appointment),
		reminders:    make(map[uuid.UUID]model.Reminder),
		records:      make(map[uuid.UUID]model.ClinicalRecord),
		patients:     make(map[uuid.UUID]model.Person),
		doctors:      make(map[uuid.UUID]model.Person),
	}
}

func (s *Store) Schedules() repository.ScheduleRepository { return scheduleStore{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return appointmentStore{s} }
func (s *Store) Reminders() repository.ReminderRepository { return reminderStore{s} }
func (s *Store) ClinicalRecords() repository.ClinicalRecordRepository { return recordStore{s} }
func (s *Store) Outbox() repository.OutboxRepository { return outboxStore{s} }
func (s *Store) Audit() repository.AuditRepository { return auditStore{s} }
func (s *Store) Directory() repository.DirectoryRepository { return directoryStore{s} }
func (s *Store) Permissions() repository.PermissionRepository { return permissionStore{s} }

// AddDoctor registers a doctor in the directory.
func (s *Store) AddDoctor(p model.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[p.ID] = p
}

// AddPatient registers a patient in the directory.
func (s *Store) AddPatient(p model.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

// Grant allows userID to perform action. A nil resourceID grants it globally.
func (s *Store) Grant(userID uuid.UUID, action string, resourceID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, grant{userID: userID, action: action, resourceID: resourceID})
}

// Put stores an appointment as-is, skipping the occupancy check. It exists to
// load fixtures and data written before the exclusivity rule was enforced.
func (s *Store) Put(a *model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.appointments[a.ID] = *a
}

// AuditLogs returns a copy of every recorded audit entry.
func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.audit...)
}

// OutboxEvents returns a copy of every outbox event.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxEvent(nil), s.outbox...)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// occupiedLocked reports whether another occupying appointment holds a's slot.
func (s *Store) occupiedLocked(a *model.Appointment) bool {
	for id, other := range s.appointments {
		if id == a.ID || !other.Status.Occupies() {
			continue
		}
		if other.DoctorID == a.DoctorID && sameDay(other.Date, a.Date) && other.Time == a.Time {
			return true
		}
	}
	return false
}

type scheduleStore struct{ *Store }

func (s scheduleStore) GetEntry(_ context.Context, doctorID uuid.UUID, day model.Weekday) (*model.WorkingScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.schedules[scheduleKey{doctorID, day}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

func (s scheduleStore) ListEntries(_ context.Context, doctorID uuid.UUID) ([]*model.WorkingScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []*model.WorkingScheduleEntry
	for _, day := range model.AllWeekdays {
		if entry, ok := s.schedules[scheduleKey{doctorID, day}]; ok {
			e := entry
			entries = append(entries, &e)
		}
	}
	return entries, nil
}

func (s scheduleStore) Upsert(_ context.Context, entry *model.WorkingScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scheduleKey{entry.DoctorID, entry.Weekday}
	now := time.Now()
	if existing, ok := s.schedules[key]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	s.schedules[key] = *entry
	return nil
}

type appointmentStore struct{ *Store }

func (s appointmentStore) Create(_ context.Context, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status.Occupies() && s.occupiedLocked(a) {
		return repository.ErrSlotTaken
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.appointments[a.ID] = *a
	return nil
}

func (s appointmentStore) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s appointmentStore) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Appointment
	for _, a := range s.appointments {
		if filters != nil {
			if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
				continue
			}
			if !filters.Date.IsZero() && !sameDay(a.Date, filters.Date) {
				continue
			}
			if len(filters.Statuses) > 0 && !containsStatus(filters.Statuses, a.Status) {
				continue
			}
		}
		apt := a
		out = append(out, &apt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func containsStatus(statuses []model.AppointmentStatus, s model.AppointmentStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s appointmentStore) BookedTimes(_ context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var times []string
	for id, a := range s.appointments {
		if id == excludeID || a.DoctorID != doctorID || !a.Status.Occupies() || !sameDay(a.Date, date) {
			continue
		}
		times = append(times, a.Time)
	}
	sort.Strings(times)
	return times, nil
}

func (s appointmentStore) UpdateIfStatus(_ context.Context, a *model.Appointment, expected model.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateIfStatusLocked(a, expected)
}

func (s *Store) updateIfStatusLocked(a *model.Appointment, expected model.AppointmentStatus) error {
	stored, ok := s.appointments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStaleState
	}
	if a.Status.Occupies() && s.occupiedLocked(a) {
		return repository.ErrSlotTaken
	}
	a.UpdatedAt = time.Now()
	s.appointments[a.ID] = *a
	return nil
}

type reminderStore struct{ *Store }

func (s reminderStore) Enqueue(_ context.Context, r *model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = model.ReminderStatusPending
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.reminders[r.ID] = *r
	return nil
}

func (s reminderStore) CancelPending(_ context.Context, appointmentID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.reminders {
		if r.AppointmentID == appointmentID && r.Status == model.ReminderStatusPending {
			r.Status = model.ReminderStatusCancelled
			r.UpdatedAt = time.Now()
			s.reminders[id] = r
			n++
		}
	}
	return n, nil
}

func (s reminderStore) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Reminder
	for _, r := range s.reminders {
		if r.AppointmentID == appointmentID {
			rem := r
			out = append(out, &rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendAt.Before(out[j].SendAt) })
	return out, nil
}

func (s reminderStore) ProcessDue(_ context.Context, now time.Time, limit, maxAttempts int, fn func(*model.Reminder) error) (int, error) {
	s.mu.Lock()
	var due []model.Reminder
	for _, r := range s.reminders {
		if r.Status == model.ReminderStatusPending && !r.SendAt.After(now) {
			due = append(due, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].SendAt.Before(due[j].SendAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	// fn runs unlocked so delivery can read other tables of the store.
	processed := 0
	for i := range due {
		r := due[i]
		err := fn(&r)

		s.mu.Lock()
		current, ok := s.reminders[r.ID]
		if !ok || current.Status != model.ReminderStatusPending {
			s.mu.Unlock()
			continue
		}
		current.UpdatedAt = time.Now()
		if errors.Is(err, repository.ErrReminderObsolete) {
			current.Status = model.ReminderStatusCancelled
			s.reminders[r.ID] = current
			s.mu.Unlock()
			continue
		}
		current.Attempts++
		if err != nil {
			msg := err.Error()
			current.LastError = &msg
			if current.Attempts >= maxAttempts {
				current.Status = model.ReminderStatusFailed
			}
		} else {
			sentAt := now
			current.Status = model.ReminderStatusSent
			current.SentAt = &sentAt
			processed++
		}
		s.reminders[r.ID] = current
		s.mu.Unlock()
	}
	return processed, nil
}

type recordStore struct{ *Store }

func (s recordStore) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.ClinicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[appointmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (s recordStore) CreateIfAbsent(_ context.Context, record *model.ClinicalRecord) (*model.ClinicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRecordLocked(record), nil
}

func (s recordStore) OpenForAppointment(_ context.Context, a *model.Appointment, expected model.AppointmentStatus, record *model.ClinicalRecord) (*model.ClinicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateIfStatusLocked(a, expected); err != nil {
		return nil, err
	}
	return s.createRecordLocked(record), nil
}

func (s *Store) createRecordLocked(record *model.ClinicalRecord) *model.ClinicalRecord {
	if existing, ok := s.records[record.AppointmentID]; ok {
		return &existing
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = model.ClinicalRecordStatusDraft
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.records[record.AppointmentID] = *record
	stored := *record
	return &stored
}

type outboxStore struct{ *Store }

func (s outboxStore) Create(_ context.Context, event *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Payload = append(json.RawMessage(nil), event.Payload...)
	s.outbox = append(s.outbox, *event)
	return nil
}

func (s outboxStore) ProcessPending(_ context.Context, limit, maxRetries int, retryDelay time.Duration, fn func(*model.OutboxEvent) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	processed, seen := 0, 0
	for i := range s.outbox {
		evt := &s.outbox[i]
		if evt.Status != model.OutboxStatusPending || (evt.RetryAt != nil && evt.RetryAt.After(now)) {
			continue
		}
		if limit > 0 && seen >= limit {
			break
		}
		seen++

		if err := fn(evt); err != nil {
			msg := err.Error()
			evt.ErrorMessage = &msg
			evt.RetryCount++
			retryAt := now.Add(retryDelay * time.Duration(evt.RetryCount))
			evt.RetryAt = &retryAt
			if evt.RetryCount >= maxRetries {
				evt.Status = model.OutboxStatusFailed
			}
			evt.UpdatedAt = now
			continue
		}
		evt.Status = model.OutboxStatusProcessed
		evt.ErrorMessage = nil
		evt.ProcessedAt = &now
		evt.UpdatedAt = now
		processed++
	}
	return processed, nil
}

func (s outboxStore) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.outbox[:0]
	var n int64
	for _, evt := range s.outbox {
		if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, evt)
	}
	s.outbox = kept
	return n, nil
}

type auditStore struct{ *Store }

func (s auditStore) Create(_ context.Context, log *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = time.Now()
	s.audit = append(s.audit, *log)
	return nil
}

type directoryStore struct{ *Store }

func (s directoryStore) GetPatient(_ context.Context, id uuid.UUID) (*model.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s directoryStore) GetDoctor(_ context.Context, id uuid.UUID) (*model.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type permissionStore struct{ *Store }

func (s permissionStore) HasPermission(_ context.Context, userID uuid.UUID, action string, resourceID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.userID != userID || (g.action != action && g.action != "*") {
			continue
		}
		if g.resourceID == uuid.Nil || g.resourceID == resourceID {
			return true, nil
		}
	}
	return false, nil
}
