package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	httpapi "github.com/i474232898/air-quality-features/internal/api/http"
	"github.com/i474232898/air-quality-features/internal/config"
	"github.com/i474232898/air-quality-features/internal/features"
	"github.com/i474232898/air-quality-features/internal/features/providers"
	"github.com/i474232898/air-quality-features/internal/metrics"
	"github.com/i474232898/air-quality-features/internal/scheduler"
	"github.com/i474232898/air-quality-features/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	backoff := providers.BackoffConfig{
		MaxAttempts:     cfg.FetchMaxAttempts,
		InitialInterval: cfg.FetchRetryInitialBackoff,
		MaxInterval:     cfg.FetchRetryMaxBackoff,
	}

	// Upstream sources with resilience (backoff + circuit breaker).
	weatherSrc := providers.NewVisualCrossingProvider(httpClient, cfg.WeatherBaseURL, cfg.WeatherAPIKey, backoff)
	airSrc := providers.NewWAQIProvider(httpClient, cfg.AirQualityBaseURL, cfg.AirQualityAPIKey, backoff)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	featureStore, closeStore, err := openStore(startupCtx, cfg)
	if err != nil {
		cancelStartup()
		log.Fatalf("failed to open feature store: %v", err)
	}
	defer closeStore()

	if err := featureStore.EnsureFeatureGroup(startupCtx, cfg.FeatureGroupName, cfg.FeatureDefinitions); err != nil {
		cancelStartup()
		log.Fatalf("failed to ensure feature group %s: %v", cfg.FeatureGroupName, err)
	}
	cancelStartup()

	var sink features.MetricsSink
	var promSink *metrics.PrometheusSink
	switch cfg.MetricsSink {
	case "log":
		sink = metrics.LogSink{}
	default:
		promSink = metrics.NewPrometheusSink(cfg.MetricsNamespace)
		sink = promSink
	}

	// Core service orchestrating sources, feature store and run history.
	service := features.NewService(features.Dependencies{
		Weather:    weatherSrc,
		AirQuality: airSrc,
		Schema:     featureStore,
		Records:    featureStore,
		Metrics:    sink,
	}, store.NewRunHistory(cfg.RunHistoryMax, cfg.RunHistoryMaxAge), featureStore)

	// Scheduler that periodically runs the pipeline for every configured city.
	sched := scheduler.New(cfg.FeatureGroupName, cfg.Cities, cfg.Schedule, cfg.RunOnStart, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "air-quality-features",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// No WriteTimeout: an on-demand run always finishes every city.
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":       "ok",
			"service":      "air-quality-features",
			"featureGroup": cfg.FeatureGroupName,
			"store":        cfg.StoreBackend,
		})
	})

	if promSink != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promSink.Handler()))
	}

	httpapi.RegisterRoutes(app, service, cfg.FeatureGroupName, cfg.Cities)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// openStore connects the configured feature-store backend. The returned
// func releases its connections.
func openStore(ctx context.Context, cfg *config.AppConfig) (features.FeatureStore, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		log.Printf("INFO: store: using redis at %s", cfg.RedisAddr)
		return store.NewRedisStore(client, cfg.RedisKeyPrefix), func() {
			if err := client.Close(); err != nil {
				log.Printf("store: close redis: %v", err)
			}
		}, nil

	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			if err := client.Disconnect(dctx); err != nil {
				log.Printf("store: disconnect mongo: %v", err)
			}
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}

		ms := store.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := ms.EnsureIndexes(connectCtx); err != nil {
			disconnect()
			return nil, nil, err
		}
		log.Printf("INFO: store: using mongo database %s", cfg.MongoDatabase)
		return ms, disconnect, nil

	default:
		log.Println("INFO: store: using in-memory feature store")
		return store.NewMemoryStore(), func() {}, nil
	}
}
