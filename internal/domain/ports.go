package domain

import "context"

// PaymentProvider описывает взаимодействие с платёжным провайдером.
// Все вызовы принимают ctx с таймаутом: таймаут провайдера не должен
// блокировать уже зафиксированный переход статуса.
type PaymentProvider interface {
	// CreateIntent создаёт payment intent и возвращает идентификатор
	// платежа на стороне провайдера.
	CreateIntent(ctx context.Context, orderID string, amountMinor int64, currency string) (string, error)
	// Capture списывает ранее авторизованную сумму. Повторный capture
	// уже списанного платежа у провайдера — no-op, не ошибка.
	Capture(ctx context.Context, providerPaymentID string, amountMinor int64, currency string) error
	// Refund возвращает списанные средства покупателю.
	Refund(ctx context.Context, providerPaymentID string, amountMinor int64, currency string) error
	// Release снимает авторизацию без списания.
	Release(ctx context.Context, providerPaymentID string) error
}

// DriverLocator подбирает ближайшего свободного курьера для заказа.
type DriverLocator interface {
	// NearestDriver возвращает идентификатор курьера или пустую строку,
	// если свободных нет. Отсутствие курьера — не ошибка.
	NearestDriver(ctx context.Context, vendorID string) (string, error)
}

// RealtimePublisher публикует событие об обновлении заказа подписчикам.
// Публикация best-effort: ошибка логируется и не откатывает переход.
type RealtimePublisher interface {
	PublishOrderUpdated(order Order, oldStatus OrderStatus) error
}

// ActorDirectory разрешает идентификатор инициатора в участника с ролью.
type ActorDirectory interface {
	// Resolve возвращает актора или ErrActorNotFound.
	Resolve(actorID string) (Actor, error)
}
