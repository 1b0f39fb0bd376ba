package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/ingestion"
	"github.com/cyderes/dummy-etl/internal/logger"
	"github.com/cyderes/dummy-etl/internal/pipeline"
	"github.com/cyderes/dummy-etl/internal/scheduler"
	"github.com/cyderes/dummy-etl/internal/server"
	"github.com/cyderes/dummy-etl/internal/storage"
)

const (
	loggerName      = "dummy-etl:cmd"
	shutdownTimeout = 30 * time.Second
)

// options configures the pipeline for a single run or a scheduled run.
type options struct {
	configPath     string
	storageFactory func(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error)
}

// executeRun runs the pipeline once without retries.
func (o *options) executeRun(ctx context.Context) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	store, err := o.storageFactory(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStorage(ctx, store)

	p, err := o.pipeline(cfg, store)
	if err != nil {
		return err
	}

	_, err = p.Run(ctx)
	return err
}

// executeSchedule runs the pipeline on its schedule and serves the status endpoints until
// SIGINT, SIGTERM or cancellation of ctx.
func (o *options) executeSchedule(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	store, err := o.storageFactory(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStorage(ctx, store)

	p, err := o.pipeline(cfg, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(p, cfg.Schedule)
	httpServer := server.NewServer(ctx, cfg.Server, sched)
	httpServer.StartAsync(ctx)

	log.Info("starting scheduler", "dag", pipeline.DagID, "interval", cfg.Schedule.Interval.String(), "startDate", cfg.Schedule.StartDate.Format(time.RFC3339))
	err = sched.Start(ctx)
	log.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("HTTP server shutdown error", "error", shutdownErr)
	}

	if errors.Is(err, context.Canceled) {
		log.Info("shutdown complete")
		return nil
	}
	return err
}

func (o *options) pipeline(cfg *config.Config, store storage.Storage) (*pipeline.Pipeline, error) {
	service := ingestion.NewService(cfg.Source, cfg.Transform, store)
	return pipeline.New(store, service)
}

func closeStorage(ctx context.Context, store storage.Storage) {
	if err := store.Close(); err != nil {
		logger.FromContext(ctx).WithName(loggerName).Warn("failed to close storage", "error", err)
	}
}
