package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/driver"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	Payments    domain.PaymentRepository
	Webhooks    domain.WebhookEventRepository
	DLQ         domain.WebhookDLQRepository
	Idempotency domain.IdempotencyRepository
	Timeline    domain.TimelineRepository
	Actors      domain.ActorDirectory
	Provider    domain.PaymentProvider
	Drivers     domain.DriverLocator
	Store       *postgres.Store
	Logger      *log.Entry
}

// NewDependencies создаёт зависимости приложения. Непустой PostgresDSN
// включает хранение в PostgreSQL, иначе всё живёт в памяти.
// NOTE: платёжный провайдер и поиск курьеров — mock-реализации; в проде
// их заменяют клиенты внешних сервисов.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	directory := memory.NewActorDirectory()
	seedActors(directory, cfg.SeedActors, logger)

	locator := driver.NewMockLocator()
	locator.DriverID = "driver-demo-1"

	deps := &Dependencies{
		Actors:   directory,
		Provider: payment.NewMockProvider(),
		Drivers:  locator,
		Logger:   logger,
	}

	if cfg.PostgresDSN == "" {
		deps.Orders = memory.NewOrderRepository()
		deps.Payments = memory.NewPaymentRepository()
		deps.Webhooks = memory.NewWebhookEventRepository()
		deps.DLQ = memory.NewWebhookDLQRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		deps.Timeline = memory.NewTimelineRepository()
		logger.Info("postgres DSN не задан, используется in-memory хранилище")
		return deps, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}

	deps.Store = store
	deps.Orders = postgres.NewOrderRepository(store)
	deps.Payments = postgres.NewPaymentRepository(store)
	deps.Webhooks = postgres.NewWebhookEventRepository(store)
	deps.DLQ = postgres.NewWebhookDLQRepository(store)
	deps.Idempotency = postgres.NewIdempotencyRepository(store)
	deps.Timeline = postgres.NewTimelineRepository(store)
	logger.Info("postgres хранилище инициализировано")

	return deps, nil
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() error {
	if d == nil || d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

// seedActors регистрирует участников из строки вида "id:role,id:role".
// Некорректные пары пропускаются с предупреждением.
func seedActors(directory *memory.ActorDirectory, raw string, logger *log.Entry) {
	if raw == "" {
		return
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		id, role, ok := strings.Cut(pair, ":")
		id = strings.TrimSpace(id)
		role = strings.TrimSpace(role)
		if !ok || id == "" || role == "" {
			logger.WithField("pair", pair).Warn("пропущена некорректная запись участника")
			continue
		}

		switch domain.ActorRole(role) {
		case domain.RoleCustomer, domain.RoleVendor, domain.RoleDriver, domain.RoleAdmin, domain.RoleSystem:
			directory.Register(domain.Actor{ID: id, Role: domain.ActorRole(role)})
		default:
			logger.WithFields(log.Fields{"actor": id, "role": role}).Warn("пропущена неизвестная роль участника")
		}
	}
}
