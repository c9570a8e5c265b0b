package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultBatchSize    = 100
)

var (
	webhookRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_webhook_retries_total",
		Help: "Total number of webhook reprocessing attempts grouped by result.",
	}, []string{"result"})
	webhookDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_webhook_dlq_total",
		Help: "Total number of webhook events moved to the dead letter queue.",
	})
	webhookBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_webhook_backlog",
		Help: "Current number of unprocessed webhook events due for retry.",
	})
)

// ReconcilerOptions задаёт параметры реконсилятора.
type ReconcilerOptions struct {
	Logger         *log.Entry
	PollInterval   time.Duration
	BatchSize      int
	RetryBaseDelay time.Duration
	Clock          func() time.Time
}

// Option настраивает Reconciler.
type Option func(*ReconcilerOptions)

// WithLogger задаёт logger для реконсилятора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ReconcilerOptions) {
		opts.Logger = logger
	}
}

// WithPollInterval задаёт частоту опроса необработанных событий.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *ReconcilerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча событий за цикл.
func WithBatchSize(batchSize int) Option {
	return func(opts *ReconcilerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *ReconcilerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *ReconcilerOptions) {
		opts.Clock = clock
	}
}

// Reconciler переобрабатывает webhook-события, не закрывшиеся с первой
// попытки. События независимы: отказ одного не блокирует остальные.
// Исчерпавшее попытки событие уходит в DLQ и помечается обработанным.
type Reconciler struct {
	events         domain.WebhookEventRepository
	dlq            domain.WebhookDLQRepository
	processor      *Processor
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	retryBaseDelay time.Duration
	clock          func() time.Time
}

// NewReconciler создаёт реконсилятор webhook-событий.
func NewReconciler(events domain.WebhookEventRepository, dlq domain.WebhookDLQRepository, processor *Processor, options ...Option) *Reconciler {
	opts := ReconcilerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "webhook-reconciler")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Reconciler{
		events:         events,
		dlq:            dlq,
		processor:      processor,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		retryBaseDelay: opts.RetryBaseDelay,
		clock:          opts.Clock,
	}
}

// Run запускает периодическую реконсиляцию до отмены ctx.
func (r *Reconciler) Run(ctx context.Context) {
	if r.events == nil || r.processor == nil {
		r.logger.Warn("webhook reconciler is disabled: events repo or processor is nil")
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл реконсиляции.
func (r *Reconciler) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := r.clock()
	events, err := r.events.ListDue(now, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to list due webhook events")
		return
	}
	webhookBacklog.Set(float64(len(events)))
	if len(events) == 0 {
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		r.processEvent(ctx, event)
	}
}

// processEvent делает одну попытку обработки события и решает его
// дальнейшую судьбу: закрыто, перенесено, либо DLQ.
func (r *Reconciler) processEvent(ctx context.Context, event domain.WebhookEvent) {
	processed, procErr := r.processor.Process(ctx, event.EventType, event.Payload)

	now := r.clock()
	event.Attempts++
	event.UpdatedAt = now

	if procErr == nil && processed {
		event.Processed = true
		event.ProcessedAt = now
		event.LastError = ""
		if err := r.events.Save(event); err != nil {
			r.logger.WithError(err).WithField("event_id", event.ID).Error("persist processed webhook failed")
			return
		}
		webhookRetries.WithLabelValues("processed").Inc()
		return
	}

	if procErr != nil {
		event.LastError = procErr.Error()
	} else {
		event.LastError = "not ready"
	}

	if event.Exhausted() {
		r.moveToDLQ(event, now)
		return
	}

	event.NextRetryAt = now.Add(r.retryBackoff(event.Attempts))
	if err := r.events.Save(event); err != nil {
		r.logger.WithError(err).WithField("event_id", event.ID).Error("persist webhook retry state failed")
		return
	}
	webhookRetries.WithLabelValues("retry").Inc()
	r.logger.WithFields(log.Fields{
		"event_id":      event.ID,
		"attempts":      event.Attempts,
		"next_retry_at": event.NextRetryAt,
	}).Info("webhook retry scheduled")
}

// moveToDLQ переносит исчерпанное событие в DLQ и закрывает его,
// чтобы оно больше не попадало в выборку.
func (r *Reconciler) moveToDLQ(event domain.WebhookEvent, now time.Time) {
	entry := domain.WebhookDLQEntry{
		ID:              uuid.NewString(),
		EventID:         event.ID,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.EventType,
		Payload:         event.Payload,
		ErrorMessage:    event.LastError,
		Attempts:        event.Attempts,
		CreatedAt:       now,
	}
	if r.dlq != nil {
		if err := r.dlq.Append(entry); err != nil {
			// Не закрываем событие: иначе оно потеряется и из retry,
			// и из DLQ. Следующий цикл попробует снова.
			r.logger.WithError(err).WithField("event_id", event.ID).Error("append webhook to DLQ failed")
			return
		}
	}
	webhookDLQTotal.Inc()

	event.Processed = true
	event.ProcessedAt = now
	event.LastError = "gave up: " + event.LastError
	if err := r.events.Save(event); err != nil {
		r.logger.WithError(err).WithField("event_id", event.ID).Error("persist exhausted webhook failed")
		return
	}
	webhookRetries.WithLabelValues("dlq").Inc()
	r.logger.WithFields(log.Fields{
		"event_id":          event.ID,
		"provider_event_id": event.ProviderEventID,
		"attempts":          event.Attempts,
	}).Error("webhook moved to DLQ")
}

// retryBackoff возвращает задержку перед попыткой attempts+1:
// base * 2^(attempts-1).
func (r *Reconciler) retryBackoff(attempts int) time.Duration {
	if attempts <= 1 {
		return r.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := r.retryBaseDelay
	for i := 1; i < attempts; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}
