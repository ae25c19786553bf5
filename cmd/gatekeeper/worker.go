// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/notify"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued password reset links",
		Long: `Run the background worker that takes password reset links queued by
the serve command (notify.kind: queue) and delivers them through the
configured webhook.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			return runWorkerWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	cmd.Flags().String("redis-url", "", "Redis connection URL (default $REDIS_URL)")
	cmd.Flags().Int("concurrency", 0, "number of deliveries processed in parallel (default 10)")
	return cmd
}

// runWorkerWithDeps runs the worker with injectable dependencies.
// If deps is nil, default implementations are used.
func runWorkerWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *WorkerDeps) error {
	if deps == nil {
		deps = &WorkerDeps{}
	}
	if deps.WorkerServerFactory == nil {
		deps.WorkerServerFactory = newWorkerServer
	}
	if deps.DeliveryFactory == nil {
		deps.DeliveryFactory = newDeliveryNotifier
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	if cfg.Redis.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("redis.url or REDIS_URL is required")
	}
	if cfg.Worker.Concurrency < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("worker.concurrency must be at least 1, got %d", cfg.Worker.Concurrency)
	}

	notifier, closeNotifier, err := deps.DeliveryFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Debug("error closing notifier", "error", err)
		}
	}()

	worker, err := notify.NewWorker(notifier, logger)
	if err != nil {
		return oops.Code("WORKER_SETUP_FAILED").Wrap(err)
	}

	srv, err := deps.WorkerServerFactory(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(worker.Mux()); err != nil {
		return oops.Code("WORKER_START_FAILED").Wrap(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Worker started")
	logger.Info("worker ready",
		"queue", queueName(cfg),
		"concurrency", cfg.Worker.Concurrency,
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	srv.Shutdown()
	logger.Info("shutdown complete")
	return nil
}

// newWorkerServer builds the asynq server for the notification queue.
func newWorkerServer(cfg *config.Config, logger *slog.Logger) (WorkerServer, error) {
	opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          map[string]int{queueName(cfg): 1},
		Logger:          notify.SlogLogger{Logger: logger},
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	}), nil
}

func queueName(cfg *config.Config) string {
	if cfg.Notify.Queue.Name == "" {
		return notify.DefaultQueue
	}
	return cfg.Notify.Queue.Name
}
