package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"careAlert/internal/api"
	"careAlert/internal/api/handlers/http/system"
	"careAlert/internal/config"
	"careAlert/internal/metrics"
	"careAlert/internal/push"
	"careAlert/internal/realtime"
	"careAlert/internal/redis"
	"careAlert/internal/service"
	"careAlert/internal/storage/postgres"
	"careAlert/pkg/logger"
)

type Components struct {
	logger     *slog.Logger
	cfg        *config.Config
	HttpServer *api.Server
	Postgres   *postgres.Postgres
	// nil when REDIS_ADDR is empty
	Redis    *redis.Redis
	Realtime *realtime.Hub
	Metrics  *metrics.Metrics
	Service  *service.Service
}

func InitComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	logger.Info("Initializing Postgres")

	storage, err := postgres.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to init postgres",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	checks := map[string]system.Check{
		"postgres": func(ctx context.Context) error { return storage.Pool.Ping(ctx) },
	}

	var (
		redisClient *redis.Redis
		cache       service.IncidentCache
	)
	if cfg.Redis.Addr != "" {
		logger.Info("Initializing Redis")
		redisClient, err = redis.NewRedis(ctx, cfg, logger)
		if err != nil {
			storage.Pool.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		cache = redis.NewIncidentCache(redisClient.Client, cfg.Redis.IncidentCacheTTL)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Client.Ping(ctx).Err() }
	} else {
		logger.Warn("REDIS_ADDR empty, incident list cache disabled")
	}

	m := metrics.New()
	hub := realtime.NewHub(logger.With(slog.String("component", "realtime")), m, cfg.Realtime.AllowedOrigins)

	store := service.NewIncidentStore(storage.Incidents(), cache, logger)

	var (
		dispatcher *service.Dispatcher
		notifier   service.Notifier
	)
	if cfg.Push.Enabled() {
		sender := push.NewSender(logger, cfg.Push)
		dispatcher = service.NewDispatcher(
			store,
			storage.Staff(),
			storage.Subscriptions(),
			sender,
			hub,
			m,
			logger.With(slog.String("component", "dispatcher")),
			service.DispatcherConfig{
				DeliveryTimeout: cfg.Push.DeliveryTimeout,
				MaxConcurrency:  cfg.Push.MaxConcurrency,
			},
		)
		notifier = dispatcher
	} else {
		logger.Warn("VAPID keys not set, push notifications disabled")
	}

	svc := service.NewService(
		service.NewIncidentService(store, notifier, logger),
		service.NewStaffService(storage.Staff(), storage.Subscriptions(), logger),
		service.NewSubscriptionService(storage.Staff(), storage.Subscriptions(), logger),
		dispatcher,
	)

	httpServer := api.NewServer(cfg, logger, svc, m.Handler(), hub, checks)
	logger.Info("Initialized server")

	return &Components{
		logger:     logger,
		cfg:        cfg,
		HttpServer: httpServer,
		Postgres:   storage,
		Redis:      redisClient,
		Realtime:   hub,
		Metrics:    m,
		Service:    svc,
	}, nil
}

func SetupLogger(env string) *slog.Logger {
	switch env {
	case "local":
		return logger.SetupPrettySlog()
	case "dev":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default:
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	}
}

// ShutdownAll lets background dispatches finish before the stores go away.
func (c *Components) ShutdownAll() {
	start := time.Now()
	c.logger.Info("Component shutdown started")

	c.Realtime.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Http.ShutdownTimeout)
	defer cancel()
	if err := c.Service.Incidents.Wait(ctx); err != nil {
		c.logger.Warn("Pending dispatches abandoned", slog.Any("error", err))
	}

	c.Postgres.Pool.Close()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Error("Redis close failed", slog.String("err", err.Error()))
		}
	}

	c.logger.Info("All components stopped",
		slog.Duration("latency", time.Since(start)))
}
