package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/pimsync/internal/catalog"
	"github.com/angelmondragon/pimsync/internal/ledger"
	"github.com/angelmondragon/pimsync/internal/synchealth"
	"github.com/angelmondragon/pimsync/internal/syncqueue"
	"github.com/angelmondragon/pimsync/internal/syncworker"
	"github.com/angelmondragon/pimsync/pkg/akeneo"
	"github.com/angelmondragon/pimsync/pkg/config"
	"github.com/angelmondragon/pimsync/pkg/db"
	"github.com/angelmondragon/pimsync/pkg/logger"
	"github.com/angelmondragon/pimsync/pkg/metrics"
	"github.com/angelmondragon/pimsync/pkg/migrate"
	"github.com/angelmondragon/pimsync/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pimClient, err := akeneo.NewClient(context.Background(), cfg.Akeneo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap akeneo client", err)
		os.Exit(1)
	}

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)
	queue := syncqueue.New(redisClient, cfg.Queue, logg)
	catalogRepo := catalog.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB(), cfg.Ledger.ResourceKind)
	recorder := synchealth.NewRecorder(redisClient, cfg.Health.Window)

	processor := syncworker.NewProcessor(pimClient, catalogRepo, logg, syncMetrics)
	worker := syncworker.New(queue, processor, ledgerRepo, recorder, cfg.Queue, logg, syncMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting sync worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "sync worker shutting down gracefully")
}
