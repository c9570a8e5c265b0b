package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора продавца.
	ErrVendorRequired = errors.New("vendor_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отрицательной суммы в заказе.
	ErrAmountNegative = errors.New("order amounts must be non-negative")
	// Ошибка несоответствия итога заказа сумме составляющих.
	ErrTotalMismatch = errors.New("order total does not match subtotal + tax + delivery fee")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка отсутствующего кода платёжного провайдера.
	ErrPaymentProviderRequired = errors.New("payment provider is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentExists — платёж для заказа уже создан.
	ErrPaymentExists = errors.New("payment already exists for order")
	// ErrActorNotFound — инициатор перехода неизвестен системе.
	ErrActorNotFound = errors.New("actor not found")

	// ErrCustomerMismatch — покупатель пытается управлять чужим заказом.
	ErrCustomerMismatch = errors.New("order belongs to another customer")
	// ErrVendorMismatch — продавец пытается управлять чужим заказом.
	ErrVendorMismatch = errors.New("order belongs to another vendor")
	// ErrDriverMismatch — курьер пытается назначить на заказ не себя.
	ErrDriverMismatch = errors.New("driver may only accept an assignment for themself")

	// ErrWebhookEventNotFound — webhook-событие не найдено.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	// ErrWebhookEventExists — событие с таким provider_event_id уже сохранено.
	// Уникальный индекс в хранилище — единственная гарантия при гонке доставок.
	ErrWebhookEventExists = errors.New("webhook event already stored")

	// Ошибка отсутствующего idempotency-ключа.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка отсутствующего хэша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — запись по ключу уже создана.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request payload")
	// ErrIdempotencyInFlight — запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInFlight = errors.New("request with the same idempotency key is already processing")
)

// TerminalStateError — попытка перехода из терминального статуса.
// Всегда ошибка клиента: завершённый заказ не мутирует.
type TerminalStateError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("order in terminal status %q cannot transition to %q", e.From, e.To)
}

// StructuralTransitionError — целевой статус недостижим из текущего
// по структурной таблице, независимо от роли.
type StructuralTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *StructuralTransitionError) Error() string {
	return fmt.Sprintf("transition %q -> %q is not allowed", e.From, e.To)
}

// RolePermissionError — ребро структурно допустимо, но роль не имеет
// права его инициировать. Отдельный тип, чтобы вызывающий отличал
// authorization failure от клиентской ошибки структуры.
type RolePermissionError struct {
	Role ActorRole
	From OrderStatus
	To   OrderStatus
}

func (e *RolePermissionError) Error() string {
	return fmt.Sprintf("role %q may not transition order %q -> %q", e.Role, e.From, e.To)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsTransitionDenied сообщает, что ошибка — отказ state machine
// (любой из трёх типов отказа).
func IsTransitionDenied(err error) bool {
	var terminal *TerminalStateError
	var structural *StructuralTransitionError
	var role *RolePermissionError
	return errors.As(err, &terminal) || errors.As(err, &structural) || errors.As(err, &role)
}

// IsPermissionDenied выделяет ролевые и ownership-отказы: вызывающий
// мапит их в 403, остальные отказы перехода — в 409.
func IsPermissionDenied(err error) bool {
	var role *RolePermissionError
	return errors.As(err, &role) || errors.Is(err, ErrCustomerMismatch) ||
		errors.Is(err, ErrVendorMismatch) || errors.Is(err, ErrDriverMismatch)
}
