package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

const (
	// Повторы сохранения при version conflict.
	maxSaveRetries = 3
	retryBaseDelay = 10 * time.Millisecond

	// Таймаут на вызов платёжного провайдера: переход уже зафиксирован,
	// провайдер не должен держать запрос дольше.
	providerTimeout = 5 * time.Second
)

// Dependencies собирает зависимости оркестратора. Metrics опциональны.
type Dependencies struct {
	Orders   domain.OrderRepository
	Payments domain.PaymentRepository
	Timeline domain.TimelineRepository
	Actors   domain.ActorDirectory
	Provider domain.PaymentProvider
	Drivers  domain.DriverLocator
	Realtime domain.RealtimePublisher
	Metrics  *metrics.LifecycleMetrics
}

// Orchestrator управляет жизненным циклом заказа: валидирует переходы
// через state machine, выполняет платёжные side effects, назначает
// курьеров, ведёт timeline и публикует realtime-события.
type Orchestrator struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	timeline domain.TimelineRepository
	actors   domain.ActorDirectory
	provider domain.PaymentProvider
	drivers  domain.DriverLocator
	realtime domain.RealtimePublisher
	metrics  *metrics.LifecycleMetrics
	logger   *log.Entry
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(deps Dependencies, logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}
	return &Orchestrator{
		orders:   deps.Orders,
		payments: deps.Payments,
		timeline: deps.Timeline,
		actors:   deps.Actors,
		provider: deps.Provider,
		drivers:  deps.Drivers,
		realtime: deps.Realtime,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// CreateOrderInput — параметры создания заказа. Итог вычисляется
// как subtotal + tax + delivery fee.
type CreateOrderInput struct {
	CustomerID       string
	VendorID         string
	Currency         string
	SubtotalMinor    int64
	TaxMinor         int64
	DeliveryFeeMinor int64
}

// CreateOrder создаёт заказ в статусе placed и пишет первую строку timeline.
func (o *Orchestrator) CreateOrder(ctx context.Context, input CreateOrderInput) (domain.Order, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:               uuid.NewString(),
		CustomerID:       input.CustomerID,
		VendorID:         input.VendorID,
		Status:           domain.OrderStatusPlaced,
		Currency:         input.Currency,
		SubtotalMinor:    input.SubtotalMinor,
		TaxMinor:         input.TaxMinor,
		DeliveryFeeMinor: input.DeliveryFeeMinor,
		TotalMinor:       input.SubtotalMinor + input.TaxMinor + input.DeliveryFeeMinor,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if violations := order.ValidateInvariants(); len(violations) > 0 {
		return domain.Order{}, errors.Join(violations...)
	}

	if err := o.orders.Create(order); err != nil {
		return domain.Order{}, err
	}

	o.appendTimeline(domain.TimelineEvent{
		OrderID:   order.ID,
		ActorID:   order.CustomerID,
		ActorRole: domain.RoleCustomer,
		Type:      domain.TimelineEventOrderPlaced,
		NewStatus: order.Status,
		Occurred:  now,
	})
	o.publishRealtime(order, "")

	o.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"vendor_id":   order.VendorID,
		"total_minor": order.TotalMinor,
	}).Info("order placed")

	return order, nil
}

// CreatePaymentIntent создаёт платёж у провайдера и привязывает его к
// заказу. Повторный вызов для заказа с платежом возвращает существующий
// платёж без обращения к провайдеру.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, orderID, actorID string) (domain.Payment, error) {
	actor, err := o.actors.Resolve(actorID)
	if err != nil {
		return domain.Payment{}, err
	}

	order, err := o.orders.Get(orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if actor.Role == domain.RoleCustomer && actor.ID != order.CustomerID {
		return domain.Payment{}, domain.ErrCustomerMismatch
	}

	if existing, getErr := o.payments.GetByOrder(orderID); getErr == nil {
		return existing, nil
	} else if !errors.Is(getErr, domain.ErrPaymentNotFound) {
		return domain.Payment{}, getErr
	}

	providerCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	providerPaymentID, err := o.provider.CreateIntent(providerCtx, order.ID, order.TotalMinor, order.Currency)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("create payment intent failed")
		return domain.Payment{}, err
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		Provider:          "mock",
		ProviderPaymentID: providerPaymentID,
		Status:            domain.PaymentStatusPending,
		AmountMinor:       order.TotalMinor,
		Currency:          order.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.payments.Create(payment); err != nil {
		// Конкурентный вызов успел первым: возвращаем его платёж.
		if errors.Is(err, domain.ErrPaymentExists) {
			return o.payments.GetByOrder(orderID)
		}
		return domain.Payment{}, err
	}

	o.mutateOrder(order.ID, func(fresh *domain.Order) {
		fresh.PaymentID = payment.ID
		fresh.PaymentStatus = payment.Status
	})

	return payment, nil
}

// Transition переводит заказ в целевой статус от имени actor'а.
// Успешный переход даёт ровно одну строку timeline и одну
// realtime-публикацию; side effects выполняются после фиксации статуса.
func (o *Orchestrator) Transition(ctx context.Context, orderID string, target domain.OrderStatus, actorID, reason string) (domain.Order, error) {
	start := time.Now()

	actor, err := o.actors.Resolve(actorID)
	if err != nil {
		return domain.Order{}, err
	}

	order, oldStatus, err := o.applyTransition(orderID, target, actor, reason)
	if err != nil {
		o.recordDenied(err)
		return domain.Order{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordTransition(string(target))
		o.metrics.RecordTransitionDuration(time.Since(start))
	}

	o.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     oldStatus,
		"to":       target,
		"actor_id": actor.ID,
		"role":     actor.Role,
	}).Info("order transitioned")

	o.runSideEffects(ctx, &order)

	eventType := domain.TimelineEventStatusChanged
	if target == domain.OrderStatusCancelled {
		eventType = domain.TimelineEventOrderCancelled
	}
	o.appendTimeline(domain.TimelineEvent{
		OrderID:   order.ID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Type:      eventType,
		OldStatus: oldStatus,
		NewStatus: target,
		Reason:    reason,
		Occurred:  order.UpdatedAt,
	})
	o.publishRealtime(order, oldStatus)

	// Назначение курьера запускается после того, как переход в ready
	// полностью зафиксирован в timeline.
	if target == domain.OrderStatusReady {
		o.assignNearestDriver(ctx, order.ID)
	}

	return order, nil
}

// Accept — продавец принимает заказ (placed -> accepted).
func (o *Orchestrator) Accept(ctx context.Context, orderID, actorID string) (domain.Order, error) {
	return o.Transition(ctx, orderID, domain.OrderStatusAccepted, actorID, "")
}

// Reject — продавец отклоняет заказ (placed -> cancelled).
func (o *Orchestrator) Reject(ctx context.Context, orderID, actorID, reason string) (domain.Order, error) {
	return o.Transition(ctx, orderID, domain.OrderStatusCancelled, actorID, reason)
}

// Cancel переводит заказ в cancelled с указанием причины.
func (o *Orchestrator) Cancel(ctx context.Context, orderID, actorID, reason string) (domain.Order, error) {
	return o.Transition(ctx, orderID, domain.OrderStatusCancelled, actorID, reason)
}

// AssignDriver назначает конкретного курьера на заказ. Разрешено самому
// курьеру, продавцу-владельцу и оператору платформы.
func (o *Orchestrator) AssignDriver(ctx context.Context, orderID, driverID, actorID string) (domain.Order, error) {
	actor, err := o.actors.Resolve(actorID)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := o.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
	case domain.RoleDriver:
		if actor.ID != driverID {
			return domain.Order{}, domain.ErrDriverMismatch
		}
	case domain.RoleVendor:
		if actor.ID != order.VendorID {
			return domain.Order{}, domain.ErrVendorMismatch
		}
	default:
		return domain.Order{}, &domain.RolePermissionError{Role: actor.Role, From: order.Status, To: domain.OrderStatusAssigned}
	}

	return o.assignDriver(orderID, driverID, actor)
}

// Timeline возвращает аудит заказа в хронологическом порядке.
func (o *Orchestrator) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if _, err := o.orders.Get(orderID); err != nil {
		return nil, err
	}
	return o.timeline.List(orderID)
}

// GetOrder возвращает заказ по идентификатору.
func (o *Orchestrator) GetOrder(orderID string) (domain.Order, error) {
	return o.orders.Get(orderID)
}

// applyTransition выполняет CAS-цикл: загрузка, проверка прав и state
// machine, сохранение. При конфликте версий валидация повторяется на
// свежем состоянии — переход, легальный секунду назад, мог стать
// нелегальным.
func (o *Orchestrator) applyTransition(orderID string, target domain.OrderStatus, actor domain.Actor, reason string) (domain.Order, domain.OrderStatus, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := o.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, "", err
		}

		if err := checkOwnership(order, actor); err != nil {
			return domain.Order{}, "", err
		}
		if err := domain.ValidateTransition(order.Status, target, actor.Role); err != nil {
			return domain.Order{}, "", err
		}

		oldStatus := order.Status
		now := time.Now().UTC()
		order.Status = target
		order.UpdatedAt = now
		switch target {
		case domain.OrderStatusDelivered:
			order.DeliveredAt = now
		case domain.OrderStatusCancelled:
			order.CancellationReason = reason
		}

		if err := o.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				o.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
				}).Warn("version conflict, retrying transition")
				time.Sleep(retryBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, "", err
		}

		order.Version++
		return order, oldStatus, nil
	}
	return domain.Order{}, "", domain.ErrOrderVersionConflict
}

// checkOwnership сверяет актора со ссылками заказа. admin и system
// не ограничены; курьер без назначения может взять заказ из ready.
func checkOwnership(order domain.Order, actor domain.Actor) error {
	switch actor.Role {
	case domain.RoleCustomer:
		if actor.ID != order.CustomerID {
			return domain.ErrCustomerMismatch
		}
	case domain.RoleVendor:
		if actor.ID != order.VendorID {
			return domain.ErrVendorMismatch
		}
	case domain.RoleDriver:
		if order.DriverID != "" && actor.ID != order.DriverID {
			return domain.ErrDriverMismatch
		}
	}
	return nil
}

// runSideEffects выполняет платёжные эффекты перехода. Ошибки провайдера
// логируются и не откатывают уже зафиксированный переход: расхождение
// добирает реконсиляция webhook'ов.
func (o *Orchestrator) runSideEffects(ctx context.Context, order *domain.Order) {
	switch order.Status {
	case domain.OrderStatusDelivered:
		o.capturePayment(ctx, order)
	case domain.OrderStatusCancelled:
		o.settleCancelledPayment(ctx, order)
	}
}

// capturePayment списывает авторизованный платёж после доставки.
func (o *Orchestrator) capturePayment(ctx context.Context, order *domain.Order) {
	payment, err := o.payments.GetByOrder(order.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("load payment for capture failed")
		}
		return
	}
	if payment.Status != domain.PaymentStatusAuthorized {
		return
	}

	providerCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	if err := o.provider.Capture(providerCtx, payment.ProviderPaymentID, payment.AmountMinor, payment.Currency); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id":   order.ID,
			"payment_id": payment.ID,
		}).Error("capture failed, order stays delivered")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordCapture()
	}

	payment.Status = domain.PaymentStatusCaptured
	payment.UpdatedAt = time.Now().UTC()
	if err := o.payments.Save(payment); err != nil {
		o.logger.WithError(err).WithField("payment_id", payment.ID).Error("persist captured payment failed")
		return
	}
	o.mutateOrder(order.ID, func(fresh *domain.Order) {
		fresh.PaymentStatus = domain.PaymentStatusCaptured
	})
	order.PaymentStatus = domain.PaymentStatusCaptured
}

// settleCancelledPayment закрывает платёж отменённого заказа: captured
// возвращается покупателю, authorized — освобождается без списания.
func (o *Orchestrator) settleCancelledPayment(ctx context.Context, order *domain.Order) {
	payment, err := o.payments.GetByOrder(order.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			o.logger.WithError(err).WithField("order_id", order.ID).Error("load payment for cancel failed")
		}
		return
	}

	providerCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	switch payment.Status {
	case domain.PaymentStatusCaptured:
		if err := o.provider.Refund(providerCtx, payment.ProviderPaymentID, payment.AmountMinor, payment.Currency); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"payment_id": payment.ID,
			}).Error("refund failed, order stays cancelled")
			return
		}
		if o.metrics != nil {
			o.metrics.RecordRefund()
		}
		payment.Status = domain.PaymentStatusRefunded
		payment.UpdatedAt = time.Now().UTC()
		if err := o.payments.Save(payment); err != nil {
			o.logger.WithError(err).WithField("payment_id", payment.ID).Error("persist refunded payment failed")
			return
		}
		o.mutateOrder(order.ID, func(fresh *domain.Order) {
			fresh.PaymentStatus = domain.PaymentStatusRefunded
		})
		order.PaymentStatus = domain.PaymentStatusRefunded

	case domain.PaymentStatusAuthorized:
		if err := o.provider.Release(providerCtx, payment.ProviderPaymentID); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"payment_id": payment.ID,
			}).Error("release failed, order stays cancelled")
			return
		}
		if o.metrics != nil {
			o.metrics.RecordRelease()
		}
		// Статус не меняется: авторизация снята, списания не было.
		payment.FailureReason = "authorization released"
		payment.UpdatedAt = time.Now().UTC()
		if err := o.payments.Save(payment); err != nil {
			o.logger.WithError(err).WithField("payment_id", payment.ID).Error("persist released payment failed")
		}
	}
}

// assignNearestDriver подбирает курьера для заказа в статусе ready.
// Отсутствие свободных курьеров — штатная ситуация: заказ остаётся ready.
func (o *Orchestrator) assignNearestDriver(ctx context.Context, orderID string) {
	order, err := o.orders.Get(orderID)
	if err != nil || order.Status != domain.OrderStatusReady {
		return
	}

	driverID, err := o.drivers.NearestDriver(ctx, order.VendorID)
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("driver lookup failed")
		if o.metrics != nil {
			o.metrics.RecordDriverAssignment("error")
		}
		return
	}
	if driverID == "" {
		o.logger.WithField("order_id", orderID).Info("no driver available, order stays ready")
		if o.metrics != nil {
			o.metrics.RecordDriverAssignment("none")
		}
		return
	}

	if _, err := o.assignDriver(orderID, driverID, domain.Actor{Role: domain.RoleSystem}); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id":  orderID,
			"driver_id": driverID,
		}).Warn("driver assignment failed")
	}
}

// assignDriver выполняет внутренний переход ready -> assigned с
// установкой driver_id. Ребро отсутствует в ролевых таблицах, поэтому
// переход всегда идёт от имени системы.
func (o *Orchestrator) assignDriver(orderID, driverID string, actor domain.Actor) (domain.Order, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := o.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if err := domain.ValidateTransition(order.Status, domain.OrderStatusAssigned, domain.RoleSystem); err != nil {
			o.recordDenied(err)
			return domain.Order{}, err
		}

		oldStatus := order.Status
		order.Status = domain.OrderStatusAssigned
		order.DriverID = driverID
		order.UpdatedAt = time.Now().UTC()

		if err := o.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				time.Sleep(retryBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}
		order.Version++

		if o.metrics != nil {
			o.metrics.RecordTransition(string(domain.OrderStatusAssigned))
			o.metrics.RecordDriverAssignment("assigned")
		}
		o.appendTimeline(domain.TimelineEvent{
			OrderID:   order.ID,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Type:      domain.TimelineEventDriverAssigned,
			OldStatus: oldStatus,
			NewStatus: order.Status,
			Metadata:  map[string]string{"driver_id": driverID},
			Occurred:  order.UpdatedAt,
		})
		o.publishRealtime(order, oldStatus)

		o.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"driver_id": driverID,
		}).Info("driver assigned")
		return order, nil
	}
	return domain.Order{}, domain.ErrOrderVersionConflict
}

// mutateOrder применяет точечное изменение к свежей версии заказа
// с ретраями на version conflict. Используется для полей, не входящих
// в state machine (ссылки на платёж).
func (o *Orchestrator) mutateOrder(orderID string, mutate func(*domain.Order)) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := o.orders.Get(orderID)
		if err != nil {
			o.logger.WithError(err).WithField("order_id", orderID).Error("reload order for update failed")
			return
		}
		mutate(&order)
		order.UpdatedAt = time.Now().UTC()

		if err := o.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxSaveRetries-1 {
				time.Sleep(retryBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			o.logger.WithError(err).WithField("order_id", orderID).Error("persist order update failed")
			return
		}
		return
	}
}

func (o *Orchestrator) appendTimeline(event domain.TimelineEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := o.timeline.Append(event); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Warn("append timeline event failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordTimelineEvent()
	}
}

// publishRealtime отправляет событие подписчикам. Best-effort: отказ
// брокера не влияет на результат операции.
func (o *Orchestrator) publishRealtime(order domain.Order, oldStatus domain.OrderStatus) {
	if o.realtime == nil {
		return
	}
	if err := o.realtime.PublishOrderUpdated(order, oldStatus); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("publish order update failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordRealtimeEvent()
	}
}

func (o *Orchestrator) recordDenied(err error) {
	if o.metrics == nil {
		return
	}

	var terminal *domain.TerminalStateError
	var structural *domain.StructuralTransitionError
	var role *domain.RolePermissionError
	switch {
	case errors.As(err, &terminal):
		o.metrics.RecordTransitionDenied("terminal")
	case errors.As(err, &structural):
		o.metrics.RecordTransitionDenied("structural")
	case errors.As(err, &role):
		o.metrics.RecordTransitionDenied("role")
	case domain.IsPermissionDenied(err):
		o.metrics.RecordTransitionDenied("ownership")
	case domain.IsVersionConflict(err):
		o.metrics.RecordTransitionDenied("conflict")
	case errors.Is(err, domain.ErrOrderNotFound):
		o.metrics.RecordTransitionDenied("not_found")
	default:
		o.metrics.RecordTransitionDenied("other")
	}
}
