package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

// Deliverer sends one reminder on its channel.
type Deliverer interface {
	Deliver(ctx context.Context, reminder *model.Reminder) error
}

type ReminderSweeperConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

func (c ReminderSweeperConfig) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("reminder batch size must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("reminder poll interval must be greater than 0")
	case c.MaxAttempts <= 0:
		return fmt.Errorf("reminder max attempts must be greater than 0")
	}
	return nil
}

// ReminderSweeper sends reminders whose send time has come and flips them
// to SENT, or to FAILED once MaxAttempts deliveries failed. Reminders the
// deliverer reports as obsolete are CANCELLED without counting an attempt.
type ReminderSweeper struct {
	repo      repository.ReminderRepository
	deliverer Deliverer
	config    ReminderSweeperConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReminderSweeper(
	repo repository.ReminderRepository,
	deliverer Deliverer,
	config ReminderSweeperConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) (*ReminderSweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReminderSweeper{
		repo:      repo,
		deliverer: deliverer,
		config:    config,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// WithClock replaces the time source.
func (w *ReminderSweeper) WithClock(now func() time.Time) *ReminderSweeper {
	w.now = now
	return w
}

func (w *ReminderSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info("Starting reminder sweeper")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down reminder sweeper")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				w.logger.Error(err, "Failed to sweep reminders")
			}
		}
	}
}

// SweepOnce delivers one batch of due reminders and returns how many were sent.
func (w *ReminderSweeper) SweepOnce(ctx context.Context) (int, error) {
	sent, err := w.repo.ProcessDue(ctx, w.now(), w.config.BatchSize, w.config.MaxAttempts,
		func(r *model.Reminder) error {
			err := w.deliverer.Deliver(ctx, r)
			if errors.Is(err, repository.ErrReminderObsolete) {
				w.logger.Debug("Reminder no longer needed",
					"reminder_id", r.ID.String(),
					"reason", err.Error())
				return err
			}
			w.metrics.ObserveReminder(r.Channel, err)
			if err != nil {
				w.logger.Warn("Reminder delivery failed",
					"reminder_id", r.ID.String(),
					"appointment_id", r.AppointmentID.String(),
					"channel", r.Channel,
					"attempt", r.Attempts+1,
					"error", err.Error())
			}
			return err
		})
	if err != nil {
		return sent, fmt.Errorf("failed to process due reminders: %w", err)
	}
	if sent > 0 {
		w.logger.Debug("Reminders sent", "count", sent)
	}
	return sent, nil
}
