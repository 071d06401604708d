package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/enrollment-service/internal/api/http"
	"github.com/spec-kit/enrollment-service/internal/api/http/handlers"
	"github.com/spec-kit/enrollment-service/internal/auth"
	"github.com/spec-kit/enrollment-service/internal/config"
	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/events"
	"github.com/spec-kit/enrollment-service/internal/observability"
	"github.com/spec-kit/enrollment-service/internal/persistence"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/internal/repository/sqlite"
	"github.com/spec-kit/enrollment-service/internal/service"
	"github.com/spec-kit/enrollment-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pingers := map[string]handlers.Pinger{}
	store, closeStore := openStore(ctx, cfg, logger, pingers)
	defer closeStore()

	dispatcher := events.NewInMemoryDispatcher(logger)
	var publisher *events.RedisStreamPublisher
	if cfg.Redis.Addr != "" {
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		pingers["redis"] = redis
		publisher = redis.StreamPublisher()
	}
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notifications, dispatcher, publisher)

	enrollmentService := service.NewEnrollmentService(service.StoreFor(store, service.EnrollmentDependencies{
		Audit:            service.NewAuditRecorder(store, logger, metrics, cfg.Enrollment.AuditWriteTimeout(), nil),
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
		RequiredDocument: domain.DocumentType(cfg.Enrollment.RequiredDocument),
		DirectAdmission:  cfg.Enrollment.DirectAdmission,
	}))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Hour)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pingers),
		Enrollments:    handlers.NewEnrollmentsHandler(enrollmentService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// openStore builds the configured record store and registers its health probe.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, pingers map[string]handlers.Pinger) (repository.Store, func()) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		pingers["postgres"] = pg
		return repository.NewPostgresStore(pg.PoolHandle()), pg.Close
	case config.StoreDriverSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.Error(err), zap.String("path", cfg.SQLite.Path))
		}
		logger.Info("opened sqlite store", zap.String("path", cfg.SQLite.Path))
		pingers["sqlite"] = store
		return store, func() { _ = store.Close() }
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; records are lost on restart")
		return repository.NewMemoryStore(), func() {}
	}
	logger.Fatal("unknown store driver", zap.String("driver", cfg.Store.Driver))
	return nil, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
