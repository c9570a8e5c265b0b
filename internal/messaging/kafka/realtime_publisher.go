package kafka

import (
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// RealtimePublisher транслирует обновления заказов в Kafka-топик
// market.order.events. Ключ сообщения — order_id, поэтому события одного
// заказа попадают в одну партицию и сохраняют порядок.
type RealtimePublisher struct {
	producer *Producer
	topic    string
}

// NewRealtimePublisher создает publisher поверх готового producer'а.
func NewRealtimePublisher(producer *Producer) *RealtimePublisher {
	return &RealtimePublisher{
		producer: producer,
		topic:    TopicOrderEvents,
	}
}

// PublishOrderUpdated публикует событие о смене статуса заказа.
func (p *RealtimePublisher) PublishOrderUpdated(order domain.Order, oldStatus domain.OrderStatus) error {
	eventType := EventTypeOrderUpdated
	switch order.Status {
	case domain.OrderStatusPlaced:
		eventType = EventTypeOrderPlaced
	case domain.OrderStatusCancelled:
		eventType = EventTypeOrderCancelled
	case domain.OrderStatusDelivered:
		eventType = EventTypeOrderDelivered
	}

	event := NewOrderEvent(
		eventType,
		order.ID,
		order.CustomerID,
		order.VendorID,
		string(oldStatus),
		string(order.Status),
		nil,
	)

	return p.producer.PublishEvent(p.topic, order.ID, event)
}

var _ domain.RealtimePublisher = (*RealtimePublisher)(nil)
