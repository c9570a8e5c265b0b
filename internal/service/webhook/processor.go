package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// eventStatusByType нормализует типы событий разных провайдеров к
// целевому статусу платежа. Разные провайдеры называют одно и то же
// событие по-разному.
var eventStatusByType = map[string]domain.PaymentStatus{
	"payment.authorized":                        domain.PaymentStatusAuthorized,
	"payment_intent.amount_capturable_updated":  domain.PaymentStatusAuthorized,
	"payment.captured":                          domain.PaymentStatusCaptured,
	"payment.success":                           domain.PaymentStatusCaptured,
	"charge.captured":                           domain.PaymentStatusCaptured,
	"payment_intent.succeeded":                  domain.PaymentStatusCaptured,
	"payment.failed":                            domain.PaymentStatusFailed,
	"charge.failed":                             domain.PaymentStatusFailed,
	"payment_intent.payment_failed":             domain.PaymentStatusFailed,
	"payment.refunded":                          domain.PaymentStatusRefunded,
	"refund.processed":                          domain.PaymentStatusRefunded,
	"charge.refunded":                           domain.PaymentStatusRefunded,
}

// eventData — полезная нагрузка события: идентификатор платежа на
// стороне провайдера и опциональная причина отказа.
type eventData struct {
	PaymentID     string `json:"payment_id"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Processor применяет платёжные события к платежам и заказам.
// Обработка идемпотентна: повторное событие для платежа в целевом
// статусе — no-op.
type Processor struct {
	payments domain.PaymentRepository
	orders   domain.OrderRepository
	logger   *log.Entry
}

// NewProcessor создаёт процессор платёжных событий.
func NewProcessor(payments domain.PaymentRepository, orders domain.OrderRepository, logger *log.Entry) *Processor {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-processor")
	}
	return &Processor{
		payments: payments,
		orders:   orders,
		logger:   logger,
	}
}

// Process применяет одно событие. Возвращает processed=true, когда
// событие можно считать закрытым (включая неизвестные типы), и
// processed=false без ошибки, когда платёж ещё не виден и событие
// нужно повторить позже.
func (p *Processor) Process(ctx context.Context, eventType string, payload []byte) (bool, error) {
	targetStatus, known := eventStatusByType[eventType]
	if !known {
		// Неизвестный тип подтверждаем без обработки: провайдеры шлют
		// больше типов, чем нам нужно.
		p.logger.WithField("event_type", eventType).Debug("ignoring unknown event type")
		return true, nil
	}

	var data eventData
	if err := json.Unmarshal(payload, &data); err != nil {
		return false, fmt.Errorf("decode event data: %w", err)
	}
	if data.PaymentID == "" {
		return false, fmt.Errorf("event %q carries no payment_id", eventType)
	}

	payment, err := p.payments.GetByProviderPaymentID(data.PaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			// Webhook обогнал создание платежа: дожидаемся через retry.
			p.logger.WithFields(log.Fields{
				"event_type": eventType,
				"payment_id": data.PaymentID,
			}).Info("payment not found yet, will retry")
			return false, nil
		}
		return false, err
	}

	if payment.Status == targetStatus {
		return true, nil
	}

	payment.Status = targetStatus
	if targetStatus == domain.PaymentStatusFailed {
		payment.FailureReason = data.FailureReason
		if payment.FailureReason == "" {
			payment.FailureReason = eventType
		}
	}
	payment.UpdatedAt = time.Now().UTC()
	if err := p.payments.Save(payment); err != nil {
		return false, fmt.Errorf("persist payment %s: %w", payment.ID, err)
	}

	p.propagateToOrder(payment)

	p.logger.WithFields(log.Fields{
		"event_type": eventType,
		"payment_id": payment.ID,
		"status":     targetStatus,
	}).Info("payment status applied")
	return true, nil
}

// propagateToOrder переносит статус платежа в заказ с ретраями на
// version conflict. Ошибка не валит обработку события: платёж —
// источник истины, заказ догонит.
func (p *Processor) propagateToOrder(payment domain.Payment) {
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := p.orders.Get(payment.OrderID)
		if err != nil {
			p.logger.WithError(err).WithField("order_id", payment.OrderID).Warn("load order for payment status failed")
			return
		}
		if order.PaymentStatus == payment.Status {
			return
		}

		order.PaymentStatus = payment.Status
		if order.PaymentID == "" {
			order.PaymentID = payment.ID
		}
		order.UpdatedAt = time.Now().UTC()

		if err := p.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				continue
			}
			p.logger.WithError(err).WithField("order_id", order.ID).Warn("persist payment status on order failed")
			return
		}
		return
	}
}
