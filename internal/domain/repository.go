package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы покупателя с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// PaymentRepository хранит платежи; provider_payment_id уникален.
type PaymentRepository interface {
	Create(payment Payment) error
	Get(id string) (Payment, error)
	GetByOrder(orderID string) (Payment, error)
	// GetByProviderPaymentID находит платёж по идентификатору провайдера
	// или возвращает ErrPaymentNotFound.
	GetByProviderPaymentID(providerPaymentID string) (Payment, error)
	Save(payment Payment) error
}

// WebhookEventRepository хранит входящие webhook-события.
// Уникальность provider_event_id обеспечивает хранилище, не приложение:
// только так выживает конкурентная двойная доставка.
type WebhookEventRepository interface {
	// Create сохраняет новое событие или возвращает ErrWebhookEventExists,
	// если provider_event_id уже занят.
	Create(event WebhookEvent) (WebhookEvent, error)
	Get(id string) (WebhookEvent, error)
	GetByProviderEventID(providerEventID string) (WebhookEvent, error)
	Save(event WebhookEvent) error
	// ListDue возвращает необработанные события с next_retry_at <= now.
	ListDue(now time.Time, limit int) ([]WebhookEvent, error)
}

// WebhookDLQRepository — append-only хранилище исчерпанных событий.
type WebhookDLQRepository interface {
	Append(entry WebhookDLQEntry) error
	Count() (int, error)
	List(limit int) ([]WebhookDLQEntry, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-ключу.
// Уникальность (key, principal_id, endpoint) обеспечивается хранилищем;
// проигравший гонку CreateProcessing получает ErrIdempotencyKeyAlreadyExists.
type IdempotencyRepository interface {
	CreateProcessing(key IdempotencyKey, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key IdempotencyKey) (IdempotencyRecord, error)
	// MarkDone фиксирует успешный (2xx) ответ для последующего replay.
	MarkDone(key IdempotencyKey, responseBody []byte, httpStatus int) error
	// Delete освобождает ключ: вызывается для не-2xx исходов, чтобы
	// клиентский retry выполнил операцию заново.
	Delete(key IdempotencyKey) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
