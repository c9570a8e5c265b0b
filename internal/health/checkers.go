package health

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DLQChecker следит за глубиной dead-letter очереди webhook-событий.
// Непустая DLQ не делает сервис неработоспособным, но требует внимания
// оператора, поэтому статус — degraded.
type DLQChecker struct {
	dlq       domain.WebhookDLQRepository
	threshold int
}

// NewDLQChecker создаёт проверку DLQ. threshold <= 0 означает
// "degraded при любой непустой очереди".
func NewDLQChecker(dlq domain.WebhookDLQRepository, threshold int) *DLQChecker {
	if threshold <= 0 {
		threshold = 1
	}
	return &DLQChecker{dlq: dlq, threshold: threshold}
}

// Check выполняет проверку
func (c *DLQChecker) Check() Check {
	start := time.Now()
	count, err := c.dlq.Count()
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       "webhook-dlq",
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	if count >= c.threshold {
		return Check{
			Name:       "webhook-dlq",
			Status:     StatusDegraded,
			Message:    fmt.Sprintf("%d dead-lettered events", count),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       "webhook-dlq",
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

// BacklogChecker следит за количеством webhook-событий, ожидающих retry.
type BacklogChecker struct {
	events    domain.WebhookEventRepository
	threshold int
}

// NewBacklogChecker создаёт проверку бэклога webhook-событий.
func NewBacklogChecker(events domain.WebhookEventRepository, threshold int) *BacklogChecker {
	if threshold <= 0 {
		threshold = 100
	}
	return &BacklogChecker{events: events, threshold: threshold}
}

// Check выполняет проверку
func (c *BacklogChecker) Check() Check {
	start := time.Now()
	due, err := c.events.ListDue(time.Now().UTC(), c.threshold)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       "webhook-backlog",
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	if len(due) >= c.threshold {
		return Check{
			Name:       "webhook-backlog",
			Status:     StatusDegraded,
			Message:    fmt.Sprintf("at least %d events awaiting retry", len(due)),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       "webhook-backlog",
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}
