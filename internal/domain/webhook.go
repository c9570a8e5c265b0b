package domain

import "time"

// WebhookEvent представляет одно входящее уведомление платёжного
// провайдера. Запись создаётся ровно один раз на provider_event_id
// (уникальный индекс в хранилище) и никогда не удаляется.
type WebhookEvent struct {
	ID              string
	ProviderEventID string
	EventType       string
	Payload         []byte
	Processed       bool
	Attempts        int
	MaxAttempts     int
	LastError       string
	NextRetryAt     time.Time
	ProcessedAt     time.Time // zero, пока событие не обработано
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Exhausted сообщает, что попытки обработки исчерпаны.
func (e *WebhookEvent) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// WebhookDLQEntry — снимок события, исчерпавшего все попытки.
// Append-only: предназначен для ручного разбора оператором.
type WebhookDLQEntry struct {
	ID              string
	EventID         string
	ProviderEventID string
	EventType       string
	Payload         []byte
	ErrorMessage    string
	Attempts        int
	CreatedAt       time.Time
}
