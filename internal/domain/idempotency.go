package domain

import "time"

// IdempotencyStatus описывает жизненный цикл idempotency-записи.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён успешно (2xx) и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone:
		return true
	default:
		return false
	}
}

// IdempotencyKey — составной ключ записи: клиентский ключ, принципал и
// endpoint. Один и тот же клиентский ключ на разных endpoint'ах или от
// разных принципалов — независимые записи.
type IdempotencyKey struct {
	Key         string
	PrincipalID string
	Endpoint    string
}

// Zero сообщает, что клиентский ключ не передан.
func (k IdempotencyKey) Zero() bool {
	return k.Key == ""
}

// IdempotencyRecord хранит состояние обработки запроса с idempotency-ключом.
// RequestHash выявляет переиспользование ключа с другим телом запроса.
type IdempotencyRecord struct {
	Key          IdempotencyKey
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
