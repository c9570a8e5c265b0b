package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/marketplace/internal/service/webhook"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// Run собирает все компоненты и блокируется до отмены контекста или
// фатальной ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	// Kafka опционален: без брокеров обновления заказов не публикуются.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	var realtime *kafka.RealtimePublisher
	if kafkaProducer != nil {
		realtime = kafka.NewRealtimePublisher(kafkaProducer)
	}

	lifecycleDeps := lifecycle.Dependencies{
		Orders:   deps.Orders,
		Payments: deps.Payments,
		Timeline: deps.Timeline,
		Actors:   deps.Actors,
		Provider: deps.Provider,
		Drivers:  deps.Drivers,
		Metrics:  metrics.NewLifecycleMetrics(),
	}
	// Типизированный nil в интерфейсном поле обошёл бы проверку
	// на отсутствие publisher'а, поэтому присваиваем только не-nil.
	if realtime != nil {
		lifecycleDeps.Realtime = realtime
	}
	orchestrator := lifecycle.NewOrchestrator(lifecycleDeps, logger.WithField("layer", "lifecycle"))

	processor := webhook.NewProcessor(deps.Payments, deps.Orders, logger.WithField("layer", "webhook"))

	verifier, err := webhook.NewVerifier(cfg.WebhookProvider, cfg.WebhookSecret)
	if err != nil {
		return err
	}
	ingestor := webhook.NewIngestor(deps.Webhooks, processor, verifier, logger.WithField("layer", "webhook"))

	guard := idempotency.NewGuard(deps.Idempotency, logger.WithField("layer", "idempotency"))

	handler := httpapi.NewHandler(orchestrator, ingestor, guard, cfg.SignatureHeader, logger.WithField("layer", "httpapi"))

	// Фоновые воркеры: реконсиляция webhook-событий и очистка
	// истёкших idempotency-записей.
	reconciler := webhook.NewReconciler(deps.Webhooks, deps.DLQ, processor,
		webhook.WithLogger(logger.WithField("component", "webhook-reconciler")))
	go reconciler.Run(ctx)

	cleanup := idempotency.NewCleanupWorker(deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")))
	go cleanup.Run(ctx)

	// HTTP health checks
	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("webhook-dlq", healthcheck.NewDLQChecker(deps.DLQ, 0))
	healthHandler.RegisterChecker("webhook-backlog", healthcheck.NewBacklogChecker(deps.Webhooks, 100))
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
