package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// paymentRepositoryInMemory хранит платежи с индексами по заказу и
// provider_payment_id, имитируя уникальные ограничения БД.
type paymentRepositoryInMemory struct {
	mu         sync.RWMutex
	items      map[string]domain.Payment
	byOrder    map[string]string
	byProvider map[string]string
}

// NewPaymentRepository создаёт in-memory реализацию PaymentRepository.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		items:      make(map[string]domain.Payment),
		byOrder:    make(map[string]string),
		byProvider: make(map[string]string),
	}
}

// Create сохраняет новый платёж, отклоняя дубликаты по заказу.
func (r *paymentRepositoryInMemory) Create(payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[payment.OrderID]; exists {
		return domain.ErrPaymentExists
	}

	r.items[payment.ID] = payment
	r.byOrder[payment.OrderID] = payment.ID
	if payment.ProviderPaymentID != "" {
		r.byProvider[payment.ProviderPaymentID] = payment.ID
	}
	return nil
}

// Get возвращает платёж или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) Get(id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// GetByOrder возвращает платёж заказа.
func (r *paymentRepositoryInMemory) GetByOrder(orderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.items[id], nil
}

// GetByProviderPaymentID находит платёж по идентификатору провайдера.
func (r *paymentRepositoryInMemory) GetByProviderPaymentID(providerPaymentID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProvider[providerPaymentID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.items[id], nil
}

// Save перезаписывает платёж и обновляет индекс провайдера.
func (r *paymentRepositoryInMemory) Save(payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.items[payment.ID] = payment
	if payment.ProviderPaymentID != "" {
		r.byProvider[payment.ProviderPaymentID] = payment.ID
	}
	return nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
