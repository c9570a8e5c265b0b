package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultTTL — время жизни idempotency-записи.
const DefaultTTL = 24 * time.Hour

var idempotencyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "market_idempotency_requests_total",
	Help: "Total number of idempotency-guarded requests grouped by outcome.",
}, []string{"outcome"})

// Result — исход охраняемой операции: статус и тело ответа плюс
// признак, что ответ воспроизведён из сохранённой записи.
type Result struct {
	Status   int
	Body     []byte
	Replayed bool
}

// Guard реализует single-writer-wins семантику idempotency-ключей:
// первый запрос с ключом выполняет операцию, конкуренты получают
// ErrIdempotencyInFlight, повторы после успеха — сохранённый ответ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

// NewGuard создаёт guard с TTL по умолчанию.
func NewGuard(repo domain.IdempotencyRepository, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.New().WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    DefaultTTL,
		logger: logger,
	}
}

// Execute выполняет fn под защитой idempotency-ключа. Сохраняются
// только успешные (2xx) ответы: не-2xx исход освобождает ключ, чтобы
// клиентский retry выполнил операцию заново. Пустой ключ отключает
// защиту — операция выполняется напрямую.
func (g *Guard) Execute(key domain.IdempotencyKey, requestHash string, fn func() (int, []byte, error)) (Result, error) {
	if key.Zero() {
		status, body, err := fn()
		return Result{Status: status, Body: body}, err
	}

	record, err := g.repo.CreateProcessing(key, requestHash, time.Now().UTC().Add(g.ttl))
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
			return g.resolveExisting(record, requestHash)
		}
		return Result{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
	idempotencyRequests.WithLabelValues("miss").Inc()

	status, body, err := fn()
	if err != nil {
		g.release(key)
		return Result{}, err
	}
	if status < 200 || status > 299 {
		// Ошибка бизнес-логики не кэшируется.
		g.release(key)
		return Result{Status: status, Body: body}, nil
	}

	if err := g.repo.MarkDone(key, body, status); err != nil {
		g.logger.WithError(err).WithField("key", key.Key).Error("persist idempotency response failed")
	}
	return Result{Status: status, Body: body}, nil
}

// resolveExisting решает судьбу повтора: replay, конфликт тела или
// конкурентная обработка.
func (g *Guard) resolveExisting(record domain.IdempotencyRecord, requestHash string) (Result, error) {
	if record.RequestHash != requestHash {
		idempotencyRequests.WithLabelValues("hash_mismatch").Inc()
		return Result{}, domain.ErrIdempotencyHashMismatch
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		idempotencyRequests.WithLabelValues("replayed").Inc()
		return Result{
			Status:   record.HTTPStatus,
			Body:     record.ResponseBody,
			Replayed: true,
		}, nil
	case domain.IdempotencyStatusProcessing:
		idempotencyRequests.WithLabelValues("in_flight").Inc()
		return Result{}, domain.ErrIdempotencyInFlight
	default:
		return Result{}, fmt.Errorf("idempotency record in unexpected status %q", record.Status)
	}
}

func (g *Guard) release(key domain.IdempotencyKey) {
	if err := g.repo.Delete(key); err != nil {
		g.logger.WithError(err).WithField("key", key.Key).Error("release idempotency key failed")
	}
}

// RequestHash строит стабильный хэш запроса: endpoint и тело.
func RequestHash(endpoint string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
