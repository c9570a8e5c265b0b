package domain

import "time"

// Типы событий timeline. Строки попадают в аудит и наружу не мапятся.
const (
	TimelineEventOrderPlaced    = "OrderPlaced"
	TimelineEventStatusChanged  = "OrderStatusChanged"
	TimelineEventOrderCancelled = "OrderCancelled"
	TimelineEventDriverAssigned = "DriverAssigned"
)

// TimelineEvent — append-only строка аудита по заказу: кто, какой
// переход и когда. Никогда не изменяется и не удаляется.
type TimelineEvent struct {
	ID        string
	OrderID   string
	ActorID   string
	ActorRole ActorRole
	Type      string
	OldStatus OrderStatus
	NewStatus OrderStatus
	Reason    string
	Metadata  map[string]string
	Occurred  time.Time
}
