package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/api/rest"
	"github.com/Dhoini/subscription-reconciler/internal/api/rest/handlers"
	"github.com/Dhoini/subscription-reconciler/internal/api/rest/middleware"
	"github.com/Dhoini/subscription-reconciler/internal/config"
	"github.com/Dhoini/subscription-reconciler/internal/db"
	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/integration/conekta"
	"github.com/Dhoini/subscription-reconciler/internal/integration/stripe"
	"github.com/Dhoini/subscription-reconciler/internal/kafka"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/internal/repository/memory"
	"github.com/Dhoini/subscription-reconciler/internal/service"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Stores набор репозиториев, с которыми работает сервис
type Stores struct {
	Teams    repository.TeamRepository
	Receipts repository.WebhookRepository
	Events   repository.SubscriptionEventRepository
	Products repository.ProductRepository
	Links    repository.LinkRepository
}

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config     *config.Config
	Stores     Stores
	Reconciler service.Reconciler
	Processor  *service.Processor
	Router     *gin.Engine
	Logger     *logger.Logger

	closers []func() error
}

// NewApp подключает хранилища и внешние сервисы и собирает HTTP роутер.
// Redis и Kafka необязательны: при их недоступности сервис работает без них.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	registry := metrics.NewRegistry()
	reconcilerMetrics := metrics.NewReconcilerMetrics(registry, log)
	checks := make(map[string]handlers.HealthCheckFunc)

	if err := a.initStores(ctx, checks); err != nil {
		return nil, err
	}
	a.initProductCache(checks)
	publisher := a.initAuditPublisher(ctx)

	stripeClient := stripe.NewClient(stripe.Config{
		APIKey:                  cfg.Stripe.APIKey,
		WebhookSecret:           cfg.Stripe.WebhookSecret,
		CustomPaymentMethodType: cfg.Stripe.CustomPaymentMethodType,
		BaseURL:                 cfg.Stripe.BaseURL,
	}, log)
	conektaClient := conekta.NewClient(conekta.Config{
		PrivateKey:    cfg.Conekta.PrivateKey,
		WebhookSecret: cfg.Conekta.WebhookSecret,
		BaseURL:       cfg.Conekta.BaseURL,
		APIVersion:    cfg.Conekta.APIVersion,
		Timeout:       cfg.Conekta.Timeout,
	}, log)

	st := a.Stores
	audit := service.NewAuditLog(st.Events, publisher, log)
	plans := service.NewPlanResolver(st.Products, stripeClient, reconcilerMetrics, log)
	correlator := service.NewCorrelator(stripeClient, conektaClient, st.Links, log)
	a.Reconciler = service.NewReconciler(st.Teams, st.Events, audit, plans, stripeClient, log)
	bridge := service.NewChargeBridge(correlator, stripeClient, conektaClient, st.Teams, audit, reconcilerMetrics, log)
	settlement := service.NewSettlement(correlator, st.Teams, audit, log)
	checkout := service.NewCheckoutService(st.Teams, stripeClient, conektaClient, correlator, audit, reconcilerMetrics, log)

	a.Processor = service.NewProcessor(
		st.Receipts,
		st.Teams,
		service.NewHandlerTable(a.Reconciler, bridge, settlement, log),
		map[domain.Provider]service.EventDecoder{
			domain.ProviderStripe:  stripeClient,
			domain.ProviderConekta: conektaClient,
		},
		reconcilerMetrics,
		log,
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.Router = rest.SetupRouter(log, rest.RouterDeps{
		Registry: registry,
		Auth:     middleware.NewJWTMiddleware(&middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)}, log),
		Health:   handlers.NewHealthHandler(checks, reconcilerMetrics),
		Webhooks: handlers.NewWebhookHandler(
			a.Processor,
			handlers.WebhookSource{Verifier: stripeClient, SignatureHeader: stripe.SignatureHeader},
			handlers.WebhookSource{Verifier: conektaClient, SignatureHeader: conekta.SignatureHeader},
			log,
		),
		Subscriptions: handlers.NewSubscriptionHandler(a.Reconciler, checkout, log),
	})

	log.Infow("Application initialized", "env", cfg.App.Env, "memoryStore", cfg.UsesMemoryStore())
	return a, nil
}

func (a *App) initStores(ctx context.Context, checks map[string]handlers.HealthCheckFunc) error {
	cfg, log := a.Config, a.Logger

	if cfg.UsesMemoryStore() {
		log.Warnw("Database DSN is empty, using in-memory storage", "env", cfg.App.Env)
		a.Stores = Stores{
			Teams:    memory.NewTeamRepository(),
			Receipts: memory.NewWebhookRepository(cfg.Webhook.PendingLease, nil),
			Events:   memory.NewSubscriptionEventRepository(),
			Products: memory.NewProductRepository(),
			Links:    memory.NewLinkRepository(),
		}
		return nil
	}

	if cfg.Database.MigrateOnStart {
		if err := repository.RunMigrations(cfg.Database.DSN, log); err != nil {
			return fmt.Errorf("app: failed to apply migrations: %w", err)
		}
	}
	dbClient, err := db.NewDBClient(ctx, cfg.Database.DSN, log)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, dbClient.Close)
	checks["postgres"] = dbClient.Ping

	conn := dbClient.DB()
	a.Stores = Stores{
		Teams:    repository.NewPostgresTeamRepository(conn, log),
		Receipts: repository.NewPostgresWebhookRepository(conn, cfg.Webhook.PendingLease, log),
		Events:   repository.NewPostgresSubscriptionEventRepository(conn, log),
		Products: repository.NewPostgresProductRepository(conn, log),
		Links:    repository.NewPostgresLinkRepository(conn, log),
	}
	return nil
}

func (a *App) initProductCache(checks map[string]handlers.HealthCheckFunc) {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		return
	}
	cache, err := repository.NewRedisCacheRepository(cfg.Addr, cfg.Password, cfg.DB, a.Logger)
	if err != nil {
		a.Logger.Warnw("Redis is unavailable, product cache disabled", "error", err)
		return
	}
	a.closers = append(a.closers, cache.Close)
	a.Stores.Products = repository.NewCachedProductRepository(a.Stores.Products, cache, a.Logger)
	checks["redis"] = cache.Ping
}

// initAuditPublisher возвращает nil-интерфейс, если Kafka не настроена
func (a *App) initAuditPublisher(ctx context.Context) service.AuditPublisher {
	cfg := a.Config.Kafka
	if len(cfg.Brokers) == 0 {
		return nil
	}

	kafkaCfg := kafka.NewConfig(cfg.Brokers)
	if cfg.Topic != "" {
		kafkaCfg.Topic = cfg.Topic
	}
	if cfg.ClientID != "" {
		kafkaCfg.ClientID = cfg.ClientID
	}
	if cfg.EnsureTopics {
		if err := kafka.EnsureTopics(ctx, kafkaCfg, a.Logger); err != nil {
			a.Logger.Warnw("Failed to ensure Kafka topics", "error", err)
		}
	}

	producer, err := kafka.NewAuditProducer(kafkaCfg, a.Logger)
	if err != nil {
		a.Logger.Warnw("Kafka is unavailable, audit events are stored locally only", "error", err)
		return nil
	}
	a.closers = append(a.closers, producer.Close)
	return producer
}

// Close освобождает ресурсы в обратном порядке
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
