/**
 * @description
 * This is the main entry point for the recurring transaction scheduler.
 * It is a long-running process that posts due recurring income and expense
 * templates on a cron schedule. It initializes the configuration, database
 * connection, event publisher and pass-status store, starts the scheduler,
 * and serves a small internal ops API.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/thatzerroguy/expense-tracker/internal/api"
	"github.com/thatzerroguy/expense-tracker/internal/app"
	"github.com/thatzerroguy/expense-tracker/internal/config"
	"github.com/thatzerroguy/expense-tracker/internal/ledger"
	"github.com/thatzerroguy/expense-tracker/internal/store"
	"github.com/thatzerroguy/expense-tracker/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseMaxConns > 0 {
		poolConfig.MaxConns = cfg.DatabaseMaxConns
	}
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	status, closeStatus := newStatusRecorder(ctx, cfg, logger)
	defer closeStatus()

	repository := store.NewRepository(dbpool, logger)
	sources := []app.RecurringSource{
		ledger.NewIncomePoster(repository, logger),
		ledger.NewExpensePoster(repository, logger),
	}
	jobs := app.NewJobs(sources, publisher, status, logger, *cfg)
	scheduler := app.NewScheduler(jobs, logger, *cfg)

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler started", "next_run", scheduler.NextRun())

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.NewRouter(api.NewHandler(jobs, scheduler, logger), cfg.InternalAPIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", "error", err)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for a running pass to finish
	logger.Info("scheduler stopped gracefully")
}

func newPublisher(cfg *config.Config, logger *slog.Logger) rabbitmq.Publisher {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("rabbitmq url missing; recurring posted events disabled", "env", "RABBITMQ_URL")
		return &rabbitmq.LoggingPublisher{Logger: logger}
	}

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq connection failed; recurring posted events disabled", "error", err)
		return &rabbitmq.LoggingPublisher{Logger: logger}
	}
	logger.Info("rabbitmq producer connected", "exchange", cfg.RecurringEventsExchange)
	return producer
}

func newStatusRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app.StatusRecorder, func()) {
	fallback := &app.MemoryStatusRecorder{}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; pass status kept in memory", "env", "REDIS_URL")
		return fallback, func() {}
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; pass status kept in memory", "error", err)
		return fallback, func() {}
	}

	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; pass status kept in memory", "error", err)
		client.Close()
		return fallback, func() {}
	}

	logger.Info("redis connected")
	return app.NewRedisStatusRecorder(client, cfg.RedisStatusPrefix), func() { client.Close() }
}
