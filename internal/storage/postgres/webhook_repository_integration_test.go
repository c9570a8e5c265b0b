package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestPaymentRepository_PostgresCreateGetAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orderRepo := NewOrderRepository(store)
	paymentRepo := NewPaymentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("payment-order", "customer-pay", now)
	if err := orderRepo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	payment := domain.Payment{
		ID:                "payment-1",
		OrderID:           order.ID,
		Provider:          "generic-hmac",
		ProviderPaymentID: "pi_integration_1",
		Status:            domain.PaymentStatusPending,
		AmountMinor:       order.TotalMinor,
		Currency:          order.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := paymentRepo.Create(payment); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	dup := payment
	dup.ID = "payment-2"
	if err := paymentRepo.Create(dup); !errors.Is(err, domain.ErrPaymentExists) {
		t.Fatalf("expected ErrPaymentExists on duplicate order, got %v", err)
	}

	byProvider, err := paymentRepo.GetByProviderPaymentID("pi_integration_1")
	if err != nil {
		t.Fatalf("get by provider payment id: %v", err)
	}
	if byProvider.ID != payment.ID {
		t.Fatalf("unexpected payment by provider id: %+v", byProvider)
	}

	byOrder, err := paymentRepo.GetByOrder(order.ID)
	if err != nil {
		t.Fatalf("get by order: %v", err)
	}
	if byOrder.ID != payment.ID {
		t.Fatalf("unexpected payment by order: %+v", byOrder)
	}

	byOrder.Status = domain.PaymentStatusAuthorized
	byOrder.UpdatedAt = now.Add(time.Minute)
	if err := paymentRepo.Save(byOrder); err != nil {
		t.Fatalf("save payment: %v", err)
	}

	saved, err := paymentRepo.Get(payment.ID)
	if err != nil {
		t.Fatalf("get saved payment: %v", err)
	}
	if saved.Status != domain.PaymentStatusAuthorized {
		t.Fatalf("unexpected status after save: %s", saved.Status)
	}

	if _, err := paymentRepo.Get("missing-payment"); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestWebhookEventRepository_PostgresDedupAndListDue(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	event := domain.WebhookEvent{
		ID:              "wh-1",
		ProviderEventID: "evt_integration_1",
		EventType:       "payment.captured",
		Payload:         []byte(`{"id":"evt_integration_1"}`),
		MaxAttempts:     5,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := repo.Create(event)
	if err != nil {
		t.Fatalf("create webhook event: %v", err)
	}
	if created.ID != event.ID {
		t.Fatalf("unexpected created event: %+v", created)
	}

	dup := event
	dup.ID = "wh-2"
	existing, err := repo.Create(dup)
	if !errors.Is(err, domain.ErrWebhookEventExists) {
		t.Fatalf("expected ErrWebhookEventExists, got %v", err)
	}
	if existing.ID != event.ID {
		t.Fatalf("duplicate create must return the winner: %+v", existing)
	}

	due, err := repo.ListDue(now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != event.ID {
		t.Fatalf("unexpected due events: %+v", due)
	}

	created.Attempts = 1
	created.LastError = "payment not found"
	created.NextRetryAt = now.Add(time.Hour)
	created.UpdatedAt = now.Add(time.Second)
	if err := repo.Save(created); err != nil {
		t.Fatalf("save webhook event: %v", err)
	}

	due, err = repo.ListDue(now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("list due after reschedule: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("rescheduled event must not be due: %+v", due)
	}

	created.Processed = true
	created.ProcessedAt = now.Add(2 * time.Hour)
	created.UpdatedAt = now.Add(2 * time.Hour)
	if err := repo.Save(created); err != nil {
		t.Fatalf("save processed event: %v", err)
	}

	got, err := repo.GetByProviderEventID(event.ProviderEventID)
	if err != nil {
		t.Fatalf("get by provider event id: %v", err)
	}
	if !got.Processed || got.LastError != "payment not found" {
		t.Fatalf("unexpected event state: %+v", got)
	}
}

func TestWebhookDLQRepository_PostgresAppendCountList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookDLQRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	entry := domain.WebhookDLQEntry{
		ID:              "dlq-1",
		EventID:         "wh-1",
		ProviderEventID: "evt_dead_1",
		EventType:       "payment.captured",
		Payload:         []byte(`{}`),
		ErrorMessage:    "gave up: payment not found",
		Attempts:        5,
		CreatedAt:       now,
	}
	if err := repo.Append(entry); err != nil {
		t.Fatalf("append dlq entry: %v", err)
	}

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("count dlq: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", count)
	}

	entries, err := repo.List(10)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 1 || entries[0].ProviderEventID != "evt_dead_1" {
		t.Fatalf("unexpected dlq entries: %+v", entries)
	}
	if entries[0].Attempts != 5 {
		t.Fatalf("unexpected attempts: %d", entries[0].Attempts)
	}
}
