package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// webhookEventRepositoryInMemory имитирует уникальный индекс по
// provider_event_id: второй Create на тот же идентификатор возвращает
// уже существующую запись и ErrWebhookEventExists.
type webhookEventRepositoryInMemory struct {
	mu         sync.RWMutex
	items      map[string]domain.WebhookEvent
	byProvider map[string]string
}

// NewWebhookEventRepository создаёт in-memory реализацию WebhookEventRepository.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookEventRepositoryInMemory{
		items:      make(map[string]domain.WebhookEvent),
		byProvider: make(map[string]string),
	}
}

// Create сохраняет событие либо возвращает существующее с ErrWebhookEventExists.
func (r *webhookEventRepositoryInMemory) Create(event domain.WebhookEvent) (domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byProvider[event.ProviderEventID]; ok {
		return r.items[existingID], domain.ErrWebhookEventExists
	}

	r.items[event.ID] = event
	r.byProvider[event.ProviderEventID] = event.ID
	return event, nil
}

// Get возвращает событие или ErrWebhookEventNotFound.
func (r *webhookEventRepositoryInMemory) Get(id string) (domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.items[id]
	if !ok {
		return domain.WebhookEvent{}, domain.ErrWebhookEventNotFound
	}
	return event, nil
}

// GetByProviderEventID находит событие по идентификатору провайдера.
func (r *webhookEventRepositoryInMemory) GetByProviderEventID(providerEventID string) (domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProvider[providerEventID]
	if !ok {
		return domain.WebhookEvent{}, domain.ErrWebhookEventNotFound
	}
	return r.items[id], nil
}

// Save перезаписывает событие.
func (r *webhookEventRepositoryInMemory) Save(event domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[event.ID]; !ok {
		return domain.ErrWebhookEventNotFound
	}
	r.items[event.ID] = event
	return nil
}

// ListDue возвращает необработанные события, чей next_retry_at наступил.
func (r *webhookEventRepositoryInMemory) ListDue(now time.Time, limit int) ([]domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]domain.WebhookEvent, 0)
	for _, event := range r.items {
		if event.Processed {
			continue
		}
		if event.NextRetryAt.After(now) {
			continue
		}
		due = append(due, event)
	}

	// Старые события обрабатываем первыми, как ORDER BY next_retry_at.
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRetryAt.Equal(due[j].NextRetryAt) {
			return due[i].NextRetryAt.Before(due[j].NextRetryAt)
		}
		return due[i].ID < due[j].ID
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepositoryInMemory)(nil)
