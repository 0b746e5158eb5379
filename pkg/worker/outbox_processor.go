package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("outbox batch size must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("outbox poll interval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("outbox retry attempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("outbox retry delay must be greater than 0")
	}
	return nil
}

// OutboxProcessor publishes appointment change events written by the
// scheduling core. Failed events are retried with a growing delay and
// marked FAILED after RetryAttempts.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  log,
		metrics: m,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessOnce publishes one batch and returns how many events went out.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
		defer timer.ObserveDuration()
	}

	n, err := p.repo.ProcessPending(ctx, p.config.BatchSize, p.config.RetryAttempts, p.config.RetryDelay,
		func(event *model.OutboxEvent) error {
			return p.processEvent(ctx, event)
		})
	if err != nil {
		return n, fmt.Errorf("failed to process pending events: %w", err)
	}
	return n, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := p.broker.Publish(ctx, messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Key:     appointmentKey(event),
		Payload: event.Payload,
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.OutboxEventsFailed.Inc()
		}
		p.logger.Error(err, "Failed to publish event",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"retry_count", event.RetryCount)
		return err
	}

	if p.metrics != nil {
		p.metrics.OutboxEventsProcessed.Inc()
	}
	return nil
}

// appointmentKey partitions by appointment so consumers see one
// appointment's changes in order. Events without one fall back to their id.
func appointmentKey(event *model.OutboxEvent) string {
	var body struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.Unmarshal(event.Payload, &body); err == nil && body.AppointmentID != "" {
		return body.AppointmentID
	}
	return event.ID.String()
}
