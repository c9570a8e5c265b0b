package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderPlaced    EventType = "order.placed"
	EventTypeOrderUpdated   EventType = "order.updated"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderDelivered EventType = "order.delivered"
)

// Topics для Kafka
const (
	TopicOrderEvents = "market.order.events"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	VendorID   string                 `json:"vendor_id"`
	OldStatus  string                 `json:"old_status,omitempty"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, vendorID, oldStatus, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		VendorID:   vendorID,
		OldStatus:  oldStatus,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}
