package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// idempotencyRepositoryInMemory хранит записи по составному ключу
// (key, principal_id, endpoint). CreateProcessing атомарен под мьютексом:
// проигравший гонку получает существующую запись и ErrIdempotencyKeyAlreadyExists.
type idempotencyRepositoryInMemory struct {
	mu    sync.Mutex
	items map[domain.IdempotencyKey]domain.IdempotencyRecord
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		items: make(map[domain.IdempotencyKey]domain.IdempotencyRecord),
	}
}

// CreateProcessing резервирует ключ в статусе processing.
func (r *idempotencyRepositoryInMemory) CreateProcessing(key domain.IdempotencyKey, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if key.Zero() {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if existing, ok := r.items[key]; ok {
		// Протухшая запись освобождает ключ.
		if !existing.TTLAt.After(now) {
			delete(r.items, key)
		} else {
			return existing, domain.ErrIdempotencyKeyAlreadyExists
		}
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[key] = record
	return record, nil
}

// Get возвращает запись или ErrIdempotencyKeyNotFound.
func (r *idempotencyRepositoryInMemory) Get(key domain.IdempotencyKey) (domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

// MarkDone сохраняет успешный ответ для последующего replay.
func (r *idempotencyRepositoryInMemory) MarkDone(key domain.IdempotencyKey, responseBody []byte, httpStatus int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}

	record.Status = domain.IdempotencyStatusDone
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = time.Now().UTC()
	r.items[key] = record
	return nil
}

// Delete освобождает ключ.
func (r *idempotencyRepositoryInMemory) Delete(key domain.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, key)
	return nil
}

// DeleteExpired удаляет записи с истёкшим TTL, не больше limit за вызов.
func (r *idempotencyRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for key, record := range r.items {
		if limit > 0 && deleted >= limit {
			break
		}
		if record.TTLAt.After(before) {
			continue
		}
		delete(r.items, key)
		deleted++
	}
	return deleted, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
