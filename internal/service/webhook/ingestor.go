package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 30 * time.Second
)

// ErrMalformedPayload — тело запроса не разбирается как событие.
var ErrMalformedPayload = errors.New("malformed webhook payload")

var webhookReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "market_webhook_received_total",
	Help: "Total number of incoming webhook deliveries grouped by result.",
}, []string{"result"})

// envelope — конверт провайдера: идентификатор доставки, тип события
// и полезная нагрузка.
type envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Ingestor принимает webhook: проверяет подпись, дедуплицирует по
// provider_event_id, сохраняет событие и делает одну синхронную
// попытку обработки. Неудачную попытку добирает реконсилятор.
type Ingestor struct {
	events         domain.WebhookEventRepository
	processor      *Processor
	verifier       SignatureVerifier
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *log.Entry
}

// NewIngestor создаёт ingestor с дефолтными настройками retry.
func NewIngestor(events domain.WebhookEventRepository, processor *Processor, verifier SignatureVerifier, logger *log.Entry) *Ingestor {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-ingestor")
	}
	return &Ingestor{
		events:         events,
		processor:      processor,
		verifier:       verifier,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		logger:         logger,
	}
}

// Ingest обрабатывает одну доставку. duplicate=true означает, что
// событие уже принималось раньше: провайдеру отвечают успехом, но
// ничего не делают повторно.
func (i *Ingestor) Ingest(ctx context.Context, body []byte, signatureHeader string) (duplicate bool, err error) {
	if err := i.verifier.Verify(body, signatureHeader); err != nil {
		webhookReceived.WithLabelValues("invalid_signature").Inc()
		i.logger.Warn("webhook signature rejected")
		return false, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		webhookReceived.WithLabelValues("malformed").Inc()
		return false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		webhookReceived.WithLabelValues("malformed").Inc()
		return false, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	if env.ID == "" {
		// Провайдер не прислал идентификатор доставки: дедупликация для
		// этого события не работает, фиксируем как проблему качества данных.
		env.ID = "gen-" + uuid.NewString()
		i.logger.WithField("event_type", env.Type).Warn("webhook without provider event id, generated one")
	}

	now := time.Now().UTC()
	event := domain.WebhookEvent{
		ID:              uuid.NewString(),
		ProviderEventID: env.ID,
		EventType:       env.Type,
		Payload:         env.Data,
		MaxAttempts:     i.maxAttempts,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stored, err := i.events.Create(event)
	if err != nil {
		if errors.Is(err, domain.ErrWebhookEventExists) {
			webhookReceived.WithLabelValues("duplicate").Inc()
			i.logger.WithFields(log.Fields{
				"provider_event_id": env.ID,
				"event_type":        env.Type,
			}).Info("duplicate webhook delivery ignored")
			return true, nil
		}
		webhookReceived.WithLabelValues("store_error").Inc()
		return false, fmt.Errorf("store webhook event: %w", err)
	}
	webhookReceived.WithLabelValues("accepted").Inc()

	// Одна синхронная попытка: в большинстве случаев событие
	// закрывается сразу, без участия реконсилятора.
	processed, procErr := i.processor.Process(ctx, stored.EventType, stored.Payload)
	now = time.Now().UTC()
	stored.Attempts = 1
	stored.UpdatedAt = now

	if procErr == nil && processed {
		stored.Processed = true
		stored.ProcessedAt = now
	} else {
		if procErr != nil {
			stored.LastError = procErr.Error()
			i.logger.WithError(procErr).WithField("provider_event_id", stored.ProviderEventID).Warn("sync webhook processing failed")
		} else {
			stored.LastError = "not ready"
		}
		stored.NextRetryAt = now.Add(i.retryBaseDelay)
	}

	if err := i.events.Save(stored); err != nil {
		i.logger.WithError(err).WithField("provider_event_id", stored.ProviderEventID).Error("persist webhook event state failed")
	}
	return false, nil
}
