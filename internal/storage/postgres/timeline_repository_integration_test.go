package postgres

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orderRepo := NewOrderRepository(store)
	timelineRepo := NewTimelineRepository(store)

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := sampleOrder("timeline-order", "customer-timeline", createdAt)
	if err := orderRepo.Create(order); err != nil {
		t.Fatalf("create order for timeline: %v", err)
	}

	// Пустой occurred заполняется автоматически.
	if err := timelineRepo.Append(domain.TimelineEvent{
		OrderID:   order.ID,
		ActorID:   "customer-timeline",
		ActorRole: domain.RoleCustomer,
		Type:      domain.TimelineEventOrderPlaced,
		NewStatus: domain.OrderStatusPlaced,
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	explicitOccurred := createdAt.Add(10 * time.Second)
	if err := timelineRepo.Append(domain.TimelineEvent{
		OrderID:   order.ID,
		ActorID:   "vendor-1",
		ActorRole: domain.RoleVendor,
		Type:      domain.TimelineEventStatusChanged,
		OldStatus: domain.OrderStatusPlaced,
		NewStatus: domain.OrderStatusAccepted,
		Metadata:  map[string]string{"source": "api"},
		Occurred:  explicitOccurred,
	}); err != nil {
		t.Fatalf("append timeline event with explicit occurred: %v", err)
	}

	events, err := timelineRepo.List(order.ID)
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Occurred.After(events[1].Occurred) {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
	if events[0].Type != domain.TimelineEventOrderPlaced {
		t.Fatalf("unexpected first event type: %s", events[0].Type)
	}

	second := events[1]
	if second.OldStatus != domain.OrderStatusPlaced || second.NewStatus != domain.OrderStatusAccepted {
		t.Fatalf("unexpected statuses on second event: %+v", second)
	}
	if second.ActorRole != domain.RoleVendor {
		t.Fatalf("unexpected actor role: %s", second.ActorRole)
	}
	if second.Metadata["source"] != "api" {
		t.Fatalf("metadata not round-tripped: %+v", second.Metadata)
	}
}

func TestTimelineRepository_PostgresMissingOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)

	if err := timelineRepo.Append(domain.TimelineEvent{
		OrderID: "missing-order",
		Type:    domain.TimelineEventOrderPlaced,
	}); err == nil {
		t.Fatal("expected append error for missing order due FK constraint")
	}

	events, err := timelineRepo.List("missing-order")
	if err != nil {
		t.Fatalf("list for missing order should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for missing order, got %d", len(events))
	}
}
