package domain

import "time"

// OrderStatus описывает жизненный цикл заказа на маркетплейсе.
type OrderStatus string

const (
	// OrderStatusPlaced — заказ создан покупателем, ожидает решения продавца.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusAccepted — продавец принял заказ в работу.
	OrderStatusAccepted OrderStatus = "accepted"
	// OrderStatusPreparing — заказ собирается/готовится.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady — заказ готов к выдаче курьеру.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusAssigned — курьер назначен на заказ.
	OrderStatusAssigned OrderStatus = "assigned"
	// OrderStatusPickedUp — курьер забрал заказ у продавца.
	OrderStatusPickedUp OrderStatus = "picked_up"
	// OrderStatusEnroute — курьер в пути к покупателю.
	OrderStatusEnroute OrderStatus = "enroute"
	// OrderStatusDelivered — заказ доставлен; терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal сообщает, является ли статус конечным.
// Из терминального статуса не существует ни одного разрешённого перехода.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ActorRole определяет роль участника, инициирующего переход статуса.
type ActorRole string

const (
	// RoleCustomer — покупатель, владелец заказа.
	RoleCustomer ActorRole = "customer"
	// RoleVendor — продавец, исполняющий заказ.
	RoleVendor ActorRole = "vendor"
	// RoleDriver — курьер, доставляющий заказ.
	RoleDriver ActorRole = "driver"
	// RoleAdmin — оператор платформы; обходит ролевые ограничения.
	RoleAdmin ActorRole = "admin"
	// RoleSystem — внутренние вызовы (side effects, реконсиляция).
	RoleSystem ActorRole = "system"
)

// Actor — разрешённый участник: идентификатор плюс роль.
// Для vendor/driver идентификатор актора совпадает со ссылкой в заказе.
type Actor struct {
	ID   string
	Role ActorRole
}

// Order агрегирует состояние заказа. Суммы хранятся в минимальных
// денежных единицах (копейки/центы).
type Order struct {
	ID                 string
	CustomerID         string
	VendorID           string
	DriverID           string // пустой до назначения курьера
	Status             OrderStatus
	Currency           string
	SubtotalMinor      int64
	TaxMinor           int64
	DeliveryFeeMinor   int64
	TotalMinor         int64
	PaymentID          string // пустой до создания payment intent
	PaymentStatus      PaymentStatus
	CancellationReason string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeliveredAt        time.Time // zero до доставки
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.VendorID == "" {
		errs = append(errs, ErrVendorRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.SubtotalMinor < 0 || o.TaxMinor < 0 || o.DeliveryFeeMinor < 0 || o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем итог с составляющими: subtotal + tax + delivery fee.
	if o.SubtotalMinor+o.TaxMinor+o.DeliveryFeeMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
