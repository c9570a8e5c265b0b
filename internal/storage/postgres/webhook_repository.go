package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const webhookEventColumns = `
	id, provider_event_id, event_type, payload, processed,
	attempts, max_attempts, last_error, next_retry_at, processed_at,
	created_at, updated_at`

type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-реализацию WebhookEventRepository.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

func (r *webhookEventRepository) Create(event domain.WebhookEvent) (domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (
			id, provider_event_id, event_type, payload, processed,
			attempts, max_attempts, last_error, next_retry_at, processed_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		event.ID, event.ProviderEventID, event.EventType, event.Payload, event.Processed,
		event.Attempts, event.MaxAttempts, nullString(event.LastError),
		nullTime(event.NextRetryAt), nullTime(event.ProcessedAt),
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Проигравший гонку получает запись победителя.
			existing, getErr := r.GetByProviderEventID(event.ProviderEventID)
			if getErr != nil {
				return domain.WebhookEvent{}, domain.ErrWebhookEventExists
			}
			return existing, domain.ErrWebhookEventExists
		}
		return domain.WebhookEvent{}, fmt.Errorf("insert webhook event: %w", err)
	}

	return event, nil
}

func (r *webhookEventRepository) Get(id string) (domain.WebhookEvent, error) {
	return r.getBy("id", id)
}

func (r *webhookEventRepository) GetByProviderEventID(providerEventID string) (domain.WebhookEvent, error) {
	return r.getBy("provider_event_id", providerEventID)
}

func (r *webhookEventRepository) getBy(column, value string) (domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE `+column+` = $1
	`, value)

	event, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookEvent{}, domain.ErrWebhookEventNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("select webhook event by %s: %w", column, err)
	}
	return event, nil
}

func (r *webhookEventRepository) Save(event domain.WebhookEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET processed = $1,
		    attempts = $2,
		    last_error = $3,
		    next_retry_at = $4,
		    processed_at = $5,
		    updated_at = $6
		WHERE id = $7
	`,
		event.Processed, event.Attempts, nullString(event.LastError),
		nullTime(event.NextRetryAt), nullTime(event.ProcessedAt),
		event.UpdatedAt, event.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("webhook event rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookEventNotFound
	}

	return nil
}

func (r *webhookEventRepository) ListDue(now time.Time, limit int) ([]domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE processed = FALSE
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY next_retry_at ASC NULLS FIRST, id ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due webhook events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.WebhookEvent, 0)
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}

	return events, nil
}

func scanWebhookEvent(row rowScanner) (domain.WebhookEvent, error) {
	var (
		event       domain.WebhookEvent
		lastError   sql.NullString
		nextRetryAt sql.NullTime
		processedAt sql.NullTime
	)

	if err := row.Scan(
		&event.ID, &event.ProviderEventID, &event.EventType, &event.Payload, &event.Processed,
		&event.Attempts, &event.MaxAttempts, &lastError, &nextRetryAt, &processedAt,
		&event.CreatedAt, &event.UpdatedAt,
	); err != nil {
		return domain.WebhookEvent{}, err
	}

	event.LastError = lastError.String
	if nextRetryAt.Valid {
		event.NextRetryAt = nextRetryAt.Time
	}
	if processedAt.Valid {
		event.ProcessedAt = processedAt.Time
	}
	return event, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
