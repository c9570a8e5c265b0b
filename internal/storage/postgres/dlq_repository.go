package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type webhookDLQRepository struct {
	db *sql.DB
}

// NewWebhookDLQRepository создаёт PostgreSQL-реализацию WebhookDLQRepository.
func NewWebhookDLQRepository(store *Store) domain.WebhookDLQRepository {
	return &webhookDLQRepository{db: store.DB()}
}

func (r *webhookDLQRepository) Append(entry domain.WebhookDLQEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_dlq (
			id, event_id, provider_event_id, event_type, payload,
			error_message, attempts, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		entry.ID, entry.EventID, entry.ProviderEventID, entry.EventType,
		entry.Payload, entry.ErrorMessage, entry.Attempts, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert webhook dlq entry: %w", err)
	}

	return nil
}

func (r *webhookDLQRepository) Count() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count webhook dlq: %w", err)
	}
	return count, nil
}

func (r *webhookDLQRepository) List(limit int) ([]domain.WebhookDLQEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, provider_event_id, event_type, payload,
		       error_message, attempts, created_at
		FROM webhook_dlq
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook dlq: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.WebhookDLQEntry, 0)
	for rows.Next() {
		var entry domain.WebhookDLQEntry
		if err := rows.Scan(
			&entry.ID, &entry.EventID, &entry.ProviderEventID, &entry.EventType,
			&entry.Payload, &entry.ErrorMessage, &entry.Attempts, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook dlq entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook dlq: %w", err)
	}

	return entries, nil
}

var _ domain.WebhookDLQRepository = (*webhookDLQRepository)(nil)
