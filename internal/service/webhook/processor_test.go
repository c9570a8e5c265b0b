package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type processorEnv struct {
	processor *Processor
	payments  domain.PaymentRepository
	orders    domain.OrderRepository
}

func newProcessorEnv(t *testing.T) *processorEnv {
	t.Helper()

	env := &processorEnv{
		payments: memory.NewPaymentRepository(),
		orders:   memory.NewOrderRepository(),
	}
	env.processor = NewProcessor(env.payments, env.orders, nil)
	return env
}

func (env *processorEnv) seedPayment(t *testing.T, status domain.PaymentStatus) domain.Payment {
	t.Helper()

	now := time.Now().UTC()
	order := domain.Order{
		ID:         "o-1",
		CustomerID: "c-1",
		VendorID:   "v-1",
		Status:     domain.OrderStatusPlaced,
		Currency:   "RUB",
		Version:    1,
		CreatedAt:  now,
	}
	if err := env.orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	payment := domain.Payment{
		ID:                "p-1",
		OrderID:           order.ID,
		Provider:          "mock",
		ProviderPaymentID: "pi_1",
		Status:            status,
		AmountMinor:       11000,
		Currency:          "RUB",
		CreatedAt:         now,
	}
	if err := env.payments.Create(payment); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return payment
}

func TestProcessor_CapturedEventUpdatesPaymentAndOrder(t *testing.T) {
	env := newProcessorEnv(t)
	env.seedPayment(t, domain.PaymentStatusAuthorized)

	processed, err := env.processor.Process(context.Background(), "payment.captured", []byte(`{"payment_id":"pi_1"}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !processed {
		t.Fatal("expected processed=true")
	}

	payment, err := env.payments.Get("p-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", payment.Status)
	}

	order, err := env.orders.Get("o-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusCaptured {
		t.Fatalf("order must mirror payment status, got %s", order.PaymentStatus)
	}
}

func TestProcessor_ProviderAliasesNormalize(t *testing.T) {
	aliases := []string{"payment.success", "charge.captured", "payment_intent.succeeded"}
	for _, alias := range aliases {
		env := newProcessorEnv(t)
		env.seedPayment(t, domain.PaymentStatusAuthorized)

		processed, err := env.processor.Process(context.Background(), alias, []byte(`{"payment_id":"pi_1"}`))
		if err != nil || !processed {
			t.Fatalf("%s: processed=%v err=%v", alias, processed, err)
		}
		payment, err := env.payments.Get("p-1")
		if err != nil {
			t.Fatalf("get payment: %v", err)
		}
		if payment.Status != domain.PaymentStatusCaptured {
			t.Fatalf("%s must normalize to captured, got %s", alias, payment.Status)
		}
	}
}

func TestProcessor_UnknownEventTypeIsAcknowledged(t *testing.T) {
	env := newProcessorEnv(t)

	processed, err := env.processor.Process(context.Background(), "customer.updated", []byte(`{}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !processed {
		t.Fatal("unknown type must be acknowledged, not retried")
	}
}

func TestProcessor_MissingPaymentIsRetryable(t *testing.T) {
	env := newProcessorEnv(t)

	processed, err := env.processor.Process(context.Background(), "payment.captured", []byte(`{"payment_id":"pi_ghost"}`))
	if err != nil {
		t.Fatalf("missing payment must not be an error: %v", err)
	}
	if processed {
		t.Fatal("missing payment must leave the event open for retry")
	}
}

func TestProcessor_RepeatedEventIsIdempotent(t *testing.T) {
	env := newProcessorEnv(t)
	env.seedPayment(t, domain.PaymentStatusCaptured)

	processed, err := env.processor.Process(context.Background(), "payment.captured", []byte(`{"payment_id":"pi_1"}`))
	if err != nil || !processed {
		t.Fatalf("repeat must be a no-op success: processed=%v err=%v", processed, err)
	}
}

func TestProcessor_FailedEventRecordsReason(t *testing.T) {
	env := newProcessorEnv(t)
	env.seedPayment(t, domain.PaymentStatusPending)

	processed, err := env.processor.Process(context.Background(), "payment.failed", []byte(`{"payment_id":"pi_1","failure_reason":"card declined"}`))
	if err != nil || !processed {
		t.Fatalf("process: processed=%v err=%v", processed, err)
	}

	payment, err := env.payments.Get("p-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusFailed || payment.FailureReason != "card declined" {
		t.Fatalf("unexpected payment: status=%s reason=%q", payment.Status, payment.FailureReason)
	}
}

func TestProcessor_MalformedDataIsAnError(t *testing.T) {
	env := newProcessorEnv(t)

	if _, err := env.processor.Process(context.Background(), "payment.captured", []byte(`{"payment_id":`)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := env.processor.Process(context.Background(), "payment.captured", []byte(`{}`)); err == nil {
		t.Fatal("expected missing payment_id error")
	}
}
