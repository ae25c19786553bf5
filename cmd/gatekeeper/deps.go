// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/observability"
)

// BackendFactory opens the stores selected by cfg. reg may be nil.
type BackendFactory func(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Backend, error)

// NotifierFactory builds the reset link notifier selected by cfg. The
// returned close function is never nil.
type NotifierFactory func(cfg *config.Config, logger *slog.Logger) (auth.Notifier, func() error, error)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// BackendFactory opens the stores.
	// Default: openBackend
	BackendFactory BackendFactory

	// NotifierFactory builds the reset link notifier.
	// Default: newNotifier
	NotifierFactory NotifierFactory

	// ListenerFactory creates the HTTP listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// MigrateDeps contains injectable dependencies for the migrate commands.
type MigrateDeps struct {
	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// StoreDeps contains injectable dependencies for commands that only need
// the stores: sweep and account.
type StoreDeps struct {
	// BackendFactory opens the stores.
	// Default: openBackend
	BackendFactory BackendFactory
}

// WorkerDeps contains injectable dependencies for the worker command.
type WorkerDeps struct {
	// WorkerServerFactory creates the asynq server.
	// Default: newWorkerServer
	WorkerServerFactory func(cfg *config.Config, logger *slog.Logger) (WorkerServer, error)

	// DeliveryFactory builds the notifier the worker delivers through.
	// Default: newDeliveryNotifier
	DeliveryFactory NotifierFactory
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registerer() prometheus.Registerer
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// WorkerServer interface wraps the methods used from asynq.Server.
type WorkerServer interface {
	Start(handler asynq.Handler) error
	Shutdown()
}
