package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/heraldhq/herald/internal/config"
	"github.com/heraldhq/herald/internal/dispatch"
	"github.com/heraldhq/herald/internal/event"
	handler "github.com/heraldhq/herald/internal/handler/http"
	"github.com/heraldhq/herald/internal/ratelimit"
	"github.com/heraldhq/herald/internal/repository/postgres"
	"github.com/heraldhq/herald/internal/retry"
	"github.com/heraldhq/herald/internal/rules"
	"github.com/heraldhq/herald/internal/sender"
	"github.com/heraldhq/herald/internal/service"
	"github.com/heraldhq/herald/pkg/database"
	"github.com/heraldhq/herald/pkg/health"
	"github.com/heraldhq/herald/pkg/httpclient"
	pkgkafka "github.com/heraldhq/herald/pkg/kafka"
)

// App wires together all dependencies and runs the notification engine.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	consumers  []*pkgkafka.Consumer
	dispatcher *dispatch.Dispatcher
	scheduler  *retry.Scheduler
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Redis backs the per-channel rate limiter counters.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// Kafka producer.
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Repositories.
	notificationRepo := postgres.NewNotificationRepository(pool)
	templateRepo := postgres.NewTemplateRepository(pool)
	ruleRepo := postgres.NewRuleRepository(pool)
	deliveryRepo := postgres.NewDeliveryRepository(pool)
	preferenceRepo := postgres.NewPreferenceRepository(pool)
	channelRepo := postgres.NewChannelConfigRepository(pool)

	// Channel transports. Email, sms, and push use the logging stand-in
	// until real provider integrations land; webhook-style channels go
	// through the circuit-breaker HTTP client.
	hookClient := httpclient.New(httpclient.DefaultConfig("herald-webhook"), logger)
	senders := sender.NewRegistry(
		sender.NewInAppSender(logger),
		sender.NewLogSender("email", logger),
		sender.NewLogSender("sms", logger),
		sender.NewLogSender("push", logger),
		sender.NewWebhookSender(hookClient),
		sender.NewSlackSender(hookClient),
		sender.NewTeamsSender(hookClient),
	)

	eventProducer := event.NewProducer(kafkaProducer, logger)
	engine := rules.NewEngine(logger)
	limiter := ratelimit.NewRedisLimiter(redisClient)

	// The scheduler and dispatcher reference each other: the dispatcher
	// schedules retries and deferrals, the scheduler feeds due deliveries
	// back into the dispatcher.
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		WorkersPerChannel: cfg.DispatchWorkers,
		QueueSize:         cfg.DispatchQueueSize,
		DeferralDelay:     cfg.DeferralDelay,
	}, dispatch.Deps{
		Notifications: notificationRepo,
		Deliveries:    deliveryRepo,
		Rules:         ruleRepo,
		Preferences:   preferenceRepo,
		ChannelCfgs:   channelRepo,
		Engine:        engine,
		Limiter:       limiter,
		Senders:       senders,
		Events:        eventProducer,
		Logger:        logger,
	})
	scheduler := retry.NewScheduler(dispatcher.Redispatch, logger)
	dispatcher.SetScheduler(scheduler)

	// Services.
	notificationService := service.NewNotificationService(
		notificationRepo, templateRepo, deliveryRepo, dispatcher, eventProducer, logger)
	ruleService := service.NewRuleService(ruleRepo, engine, logger)
	templateService := service.NewTemplateService(templateRepo, logger)
	preferenceService := service.NewPreferenceService(preferenceRepo, logger)
	channelService := service.NewChannelService(channelRepo, logger)
	deliveryService := service.NewDeliveryService(deliveryRepo, dispatcher, logger)

	// Kafka event consumers.
	consumerHandler := event.NewConsumerHandler(notificationService, logger)
	consumers := event.NewConsumers(cfg.KafkaBrokers, consumerHandler, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// HTTP router.
	router := handler.NewRouter(
		notificationService, ruleService, templateService,
		preferenceService, channelService, deliveryService,
		healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		producer:   kafkaProducer,
		consumers:  consumers,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		httpServer: httpServer,
	}, nil
}

// Run starts the delivery pipeline, Kafka consumers, and HTTP server, then
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.dispatcher.Start(ctx)
	a.scheduler.Start(ctx)

	for _, consumer := range a.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	for _, consumer := range a.consumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}

	// Stop accepting new deliveries, then drain the retry heap and queues.
	a.scheduler.Stop()
	a.dispatcher.Stop()

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return nil
}
