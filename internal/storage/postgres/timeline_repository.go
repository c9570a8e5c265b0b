package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if strings.TrimSpace(event.OrderID) == "" {
		return domain.ErrOrderIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal timeline metadata: %w", err)
		}
		metadata = encoded
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (
			id, order_id, actor_id, actor_role, type,
			old_status, new_status, reason, metadata, occurred
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		event.ID, event.OrderID, nullString(event.ActorID), nullString(string(event.ActorRole)),
		event.Type, nullString(string(event.OldStatus)), nullString(string(event.NewStatus)),
		nullString(event.Reason), metadata, event.Occurred,
	); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, actor_id, actor_role, type,
		       old_status, new_status, reason, metadata, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event     domain.TimelineEvent
			actorID   sql.NullString
			actorRole sql.NullString
			oldStatus sql.NullString
			newStatus sql.NullString
			reason    sql.NullString
			metadata  []byte
		)
		if err := rows.Scan(
			&event.ID, &event.OrderID, &actorID, &actorRole, &event.Type,
			&oldStatus, &newStatus, &reason, &metadata, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}

		event.ActorID = actorID.String
		event.ActorRole = domain.ActorRole(actorRole.String)
		event.OldStatus = domain.OrderStatus(oldStatus.String)
		event.NewStatus = domain.OrderStatus(newStatus.String)
		event.Reason = reason.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal timeline metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}

	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
