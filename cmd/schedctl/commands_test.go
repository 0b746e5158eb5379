package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/app"
	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/service/notification"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

type mailbox struct {
	to []string
}

func (m *mailbox) Send(_ context.Context, to, _, _ string) error {
	m.to = append(m.to, to)
	return nil
}

type harness struct {
	store     *memory.Store
	mail      *mailbox
	doctorID  uuid.UUID
	patientID uuid.UUID
	date      time.Time
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduling: config.SchedulingConfig{
			Timezone:             "UTC",
			DefaultLookAheadDays: 2,
			MaxLookAheadDays:     30,
			DefaultDuration:      30,
		},
		Reminders: config.RemindersConfig{BatchSize: 10, PollInterval: time.Second, MaxAttempts: 3},
		JWT:       config.JWTConfig{Secret: "dev-secret", Issuer: "schedctl"},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     memory.NewStore(),
		mail:      &mailbox{},
		doctorID:  uuid.New(),
		patientID: uuid.New(),
		// A date well in the future so no slot has passed.
		date: time.Now().UTC().AddDate(0, 1, 0),
	}
	h.date = timeofday.Date(h.date)
	h.store.AddDoctor(model.Person{ID: h.doctorID, Name: "Dr. Ada Byron"})
	h.store.AddPatient(model.Person{ID: h.patientID, Name: "Grace Hopper", Email: "grace@example.test"})

	require.NoError(t, h.store.Schedules().Upsert(context.Background(), &model.WorkingScheduleEntry{
		DoctorID:     h.doctorID,
		Weekday:      model.WeekdayOf(h.date),
		IsWorking:    true,
		StartTime:    timeofday.MustParse("09:00"),
		EndTime:      timeofday.MustParse("11:00"),
		SlotDuration: 30,
	}))
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{
		out:        &out,
		loadConfig: func(string) (*config.Config, error) { return testConfig(), nil },
		connect: func(_ context.Context, cfg *config.Config) (*env, error) {
			repos := app.MemoryRepositories(h.store)
			return &env{
				services:  app.NewServices(cfg, repos, logger.Nop(), nil),
				repos:     repos,
				deliverer: notification.NewService(repos.Appointments, repos.Directory, h.mail, messaging.NewRecorder()),
				logger:    logger.Nop(),
			}, nil
		},
	}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func TestSlotsCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "slots", "--doctor", h.doctorID.String(), "--date", timeofday.FormatDate(h.date))
	require.NoError(t, err)
	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "09:00")
	assert.Contains(t, out, "10:30")
	assert.Equal(t, 5, strings.Count(out, "\n"), out)

	out, err = h.run(t, "slots", "--doctor", h.doctorID.String(), "--date", timeofday.FormatDate(h.date.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Contains(t, out, "The doctor is not available on")

	_, err = h.run(t, "slots", "--doctor", "nope", "--date", timeofday.FormatDate(h.date))
	assert.Error(t, err)
}

func TestSuggestCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "suggest", "--doctor", h.doctorID.String(),
		"--date", timeofday.FormatDate(h.date), "--time", "10:00", "--days", "0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 1)
	assert.Contains(t, lines[1], "10:00")
	assert.Contains(t, lines[1], string(model.PriorityHigh))

	_, err = h.run(t, "suggest", "--doctor", h.doctorID.String(),
		"--date", timeofday.FormatDate(h.date), "--time", "10:00", "--days", "90")
	assert.Error(t, err)
}

func TestSweepRemindersCommand(t *testing.T) {
	h := newHarness(t)
	apt := &model.Appointment{
		PatientID: h.patientID, DoctorID: h.doctorID, Date: h.date, Time: "09:00",
		DurationMinutes: 30, Status: model.AppointmentStatusScheduled, Type: "consultation",
	}
	h.store.Put(apt)
	require.NoError(t, h.store.Reminders().Enqueue(context.Background(), &model.Reminder{
		AppointmentID: apt.ID,
		RecipientID:   h.patientID,
		SendAt:        time.Now().Add(-time.Minute),
		Channel:       model.ChannelEmail,
	}))

	out, err := h.run(t, "sweep-reminders")
	require.NoError(t, err)
	assert.Equal(t, "sent 1 reminders\n", out)
	assert.Equal(t, []string{"grace@example.test"}, h.mail.to)

	out, err = h.run(t, "sweep-reminders")
	require.NoError(t, err)
	assert.Equal(t, "sent 0 reminders\n", out)
}

func TestTokenCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "token", "--user", uuid.NewString(), "--ttl", "5m")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))

	_, err = h.run(t, "token", "--user", "admin")
	assert.Error(t, err)
}
