// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/httpapi"
	"github.com/holomush/gatekeeper/internal/observability"
)

const (
	readHeaderTimeout = 10 * time.Second
	readinessTimeout  = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP authentication service",
		Long: `Start the HTTP service exposing login, logout, session lookup and the
password reset endpoints, together with the metrics and health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (default 127.0.0.1:9100)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default $DATABASE_URL)")
	cmd.Flags().String("redis-url", "", "Redis connection URL (default $REDIS_URL)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker).WithLogger(slog.Default())
		}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = newNotifier
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting gatekeeper",
		"addr", cfg.Server.Addr,
		"database_driver", cfg.Database.Driver,
		"session_store", cfg.Session.Store,
		"ratelimit_store", cfg.RateLimit.Store,
		"notify_kind", cfg.Notify.Kind,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		ready   atomic.Bool
		backend atomic.Pointer[Backend]
	)
	readiness := func() bool {
		b := backend.Load()
		if !ready.Load() || b == nil {
			return false
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer pingCancel()
		return b.Ping(pingCtx) == nil
	}

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		reg       prometheus.Registerer
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness)
		metrics = obsServer.Metrics()
		reg = obsServer.Registerer()
	} else {
		r := prometheus.NewRegistry()
		metrics = observability.NewMetrics(r)
		reg = r
	}

	b, err := deps.BackendFactory(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer b.Close()
	backend.Store(b)

	notifier, closeNotifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Debug("error closing notifier", "error", err)
		}
	}()

	svc, err := buildServices(cfg, b, observability.InstrumentNotifier(notifier, metrics), metrics, logger)
	if err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Services{
		Login:    svc.Login,
		Reset:    svc.Reset,
		Sessions: svc.Sessions,
	}, cfg.HTTP(), metrics, logger)
	if err != nil {
		return err //nolint:wrapcheck // configuration errors carry their own codes
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpErrChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrChan <- serveErr
		}
		close(httpErrChan)
	}()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := httpServer.Shutdown(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop HTTP server during cleanup", "error", stopErr)
			}
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "http")

	var wg sync.WaitGroup
	if cfg.Sweep.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Sweeper.Run(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Printf("Gatekeeper listening on %s\n", listener.Addr())
	logger.Info("gatekeeper ready", "addr", listener.Addr().String())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	ready.Store(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	if err := svc.Reset.Wait(shutdownCtx); err != nil {
		logger.Warn("reset link deliveries still pending at shutdown", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
