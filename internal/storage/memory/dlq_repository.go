package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// webhookDLQRepositoryInMemory — append-only список исчерпанных событий.
type webhookDLQRepositoryInMemory struct {
	mu      sync.RWMutex
	entries []domain.WebhookDLQEntry
}

// NewWebhookDLQRepository создаёт in-memory реализацию WebhookDLQRepository.
func NewWebhookDLQRepository() domain.WebhookDLQRepository {
	return &webhookDLQRepositoryInMemory{}
}

// Append добавляет запись в конец очереди.
func (r *webhookDLQRepositoryInMemory) Append(entry domain.WebhookDLQEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return nil
}

// Count возвращает число записей.
func (r *webhookDLQRepositoryInMemory) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries), nil
}

// List возвращает записи в порядке добавления, не больше limit (если >0).
func (r *webhookDLQRepositoryInMemory) List(limit int) ([]domain.WebhookDLQEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit > 0 && n > limit {
		n = limit
	}
	result := make([]domain.WebhookDLQEntry, n)
	copy(result, r.entries[:n])
	return result, nil
}

var _ domain.WebhookDLQRepository = (*webhookDLQRepositoryInMemory)(nil)
