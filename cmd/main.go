/**
 * @description
 * This is the main entry point for the settlement engine. It is a long-running
 * process that wires the configuration, database pool, chain gateway client,
 * and event producer into the engine, starts the cron scheduler, and serves
 * the internal ops API until it receives a termination signal.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/stablevest/settlement-engine/internal/api"
	"github.com/stablevest/settlement-engine/internal/app"
	"github.com/stablevest/settlement-engine/internal/config"
	"github.com/stablevest/settlement-engine/internal/domain"
	"github.com/stablevest/settlement-engine/internal/store"
	"github.com/stablevest/settlement-engine/pkg/chainclient"
	"github.com/stablevest/settlement-engine/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file if present (local development convenience).
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment")
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
	poolConfig.MaxConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// The broker is an optional collaborator: if it is unreachable at startup
	// the engine still runs and settlement events are logged instead.
	var publisher rabbitmq.Publisher
	if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err != nil {
		logger.Warn("rabbitmq unavailable, notifications will be dropped", "error", err)
		publisher = &rabbitmq.NoopPublisher{Logger: logger}
	} else {
		publisher = producer
	}
	defer publisher.Close()

	repository := store.NewPostgresRepository(dbpool)
	chain := chainclient.NewClient(cfg.ChainGatewayURL, cfg.TokenDecimals, cfg.ChainRPCTimeout())
	notifier := app.NewEventNotifier(publisher, cfg.NotificationExchange, logger)
	catalog := domain.NewPlanCatalog(domain.DefaultPlans())

	engine := app.NewEngine(repository, chain, notifier, catalog, logger, *cfg)
	scheduler := app.NewScheduler(engine, logger, *cfg)

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	if cfg.RunSweepOnStart {
		logger.Info("running bootstrap settlement cycle")
		scheduler.ForceRun(ctx)
	}

	handler := api.NewHandler(engine, scheduler, logger)
	router := api.NewRouter(handler, cfg.InternalAPIKey)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		logger.Info("ops API listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for any in-flight cycle to finish.
	logger.Info("settlement engine stopped gracefully")
}
