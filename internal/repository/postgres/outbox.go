package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ProcessPending(ctx context.Context, limit, maxRetries int, retryDelay time.Duration, fn func(*model.OutboxEvent) error) (int, error) {
	processed := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, event_type, payload, status, error_message, retry_count,
				retry_at, created_at, processed_at, updated_at
			FROM outbox_events
			WHERE status = $1
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, query, model.OutboxStatusPending, limit); err != nil {
			return fmt.Errorf("failed to fetch pending events: %w", err)
		}

		for _, evt := range events {
			if pubErr := fn(evt); pubErr != nil {
				msg := pubErr.Error()
				status := model.OutboxStatusPending
				retryAt := time.Now().Add(retryDelay * time.Duration(evt.RetryCount+1))
				if evt.RetryCount+1 >= maxRetries {
					status = model.OutboxStatusFailed
				}
				_, err := tx.ExecContext(ctx, `
					UPDATE outbox_events
					SET status = $1,
						error_message = $2,
						retry_count = retry_count + 1,
						retry_at = $3,
						updated_at = NOW()
					WHERE id = $4
				`, status, msg, retryAt, evt.ID)
				if err != nil {
					return fmt.Errorf("failed to schedule event retry: %w", err)
				}
				continue
			}

			_, err := tx.ExecContext(ctx, `
				UPDATE outbox_events
				SET status = $1, error_message = NULL, processed_at = NOW(), updated_at = NOW()
				WHERE id = $2
			`, model.OutboxStatusProcessed, evt.ID)
			if err != nil {
				return fmt.Errorf("failed to mark event processed: %w", err)
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = $1
		AND processed_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}
