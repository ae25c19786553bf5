// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package integration runs the HTTP API end to end against PostgreSQL and
// Redis containers.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/postgres"
	"github.com/holomush/gatekeeper/internal/auth/redisstore"
	"github.com/holomush/gatekeeper/internal/httpapi"
	"github.com/holomush/gatekeeper/internal/store"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

// testEnv holds the containers shared by every spec.
type testEnv struct {
	ctx      context.Context
	pg       *tcpostgres.PostgresContainer
	redisCtr testcontainers.Container
	pool     *pgxpool.Pool
	redis    *redis.Client
}

var env *testEnv

var _ = BeforeSuite(func() {
	ctx := context.Background()
	env = &testEnv{ctx: ctx}

	var err error
	env.pg, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatekeeper_e2e"),
		tcpostgres.WithUsername("gatekeeper"),
		tcpostgres.WithPassword("gatekeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	dsn, err := env.pg.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(dsn)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	env.pool, err = store.OpenPool(ctx, dsn, store.DefaultPoolConfig())
	Expect(err).NotTo(HaveOccurred())

	env.redisCtr, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	Expect(err).NotTo(HaveOccurred())

	host, err := env.redisCtr.Host(ctx)
	Expect(err).NotTo(HaveOccurred())
	port, err := env.redisCtr.MappedPort(ctx, "6379/tcp")
	Expect(err).NotTo(HaveOccurred())

	env.redis, err = redisstore.Connect(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), 5)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env == nil {
		return
	}
	if env.redis != nil {
		_ = env.redis.Close()
	}
	if env.pool != nil {
		env.pool.Close()
	}
	if env.redisCtr != nil {
		_ = env.redisCtr.Terminate(env.ctx)
	}
	if env.pg != nil {
		_ = env.pg.Terminate(env.ctx)
	}
})

// reset empties both stores between specs.
func (e *testEnv) reset() {
	_, err := e.pool.Exec(e.ctx, `TRUNCATE credentials, sessions, password_resets CASCADE`)
	Expect(err).NotTo(HaveOccurred())
	Expect(e.redis.FlushDB(e.ctx).Err()).To(Succeed())
}

// stack is one fully wired gatekeeper behind an httptest server.
type stack struct {
	server      *httptest.Server
	credentials *postgres.CredentialRepository
	hasher      *auth.Argon2idHasher
	outbox      *outbox
	reset       *auth.ResetService
}

// newStack wires postgres credentials and reset tokens with Redis sessions
// and counters, as a production deployment with redis session storage does.
func (e *testEnv) newStack() *stack {
	hasher, err := auth.NewArgon2idHasher(auth.HashParams{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32})
	Expect(err).NotTo(HaveOccurred())

	credentials := postgres.NewCredentialRepository(e.pool)
	resetRepo := postgres.NewResetTokenRepository(e.pool)
	sessionRepo := redisstore.NewSessionRepository(e.redis, redisstore.DefaultPrefix)
	counters := redisstore.NewCounterStore(e.redis, redisstore.DefaultPrefix)

	sessions, err := auth.NewSessionAuthority(sessionRepo, auth.DefaultSessionConfig())
	Expect(err).NotTo(HaveOccurred())
	tokens, err := auth.NewResetTokenAuthority(resetRepo, auth.DefaultResetConfig())
	Expect(err).NotTo(HaveOccurred())

	limiter, err := auth.NewRateLimiter(counters, auth.RateLimitPolicy{
		Scope:       "login",
		MaxAttempts: auth.DefaultMaxAttempts,
		Window:      auth.DefaultWindow,
		KeyBy:       auth.KeyByIP,
	})
	Expect(err).NotTo(HaveOccurred())

	login, err := auth.NewLoginService(limiter, credentials, hasher, sessions)
	Expect(err).NotTo(HaveOccurred())

	box := &outbox{}
	reset, err := auth.NewResetService(credentials, postgres.NewTransactor(e.pool), tokens, hasher, box, auth.ResetServiceConfig{
		LinkBaseURL:    "https://app.example.com",
		Policy:         auth.DefaultPasswordPolicy(),
		RevokeSessions: true,
	})
	Expect(err).NotTo(HaveOccurred())
	reset.WithSessions(sessions)

	cfg := httpapi.DefaultConfig()
	cfg.CookieSecure = false
	router, err := httpapi.NewRouter(httpapi.Services{Login: login, Reset: reset, Sessions: sessions}, cfg, nil, slog.New(slog.DiscardHandler))
	Expect(err).NotTo(HaveOccurred())

	s := &stack{
		server:      httptest.NewServer(router),
		credentials: credentials,
		hasher:      hasher,
		outbox:      box,
		reset:       reset,
	}
	DeferCleanup(s.server.Close)
	DeferCleanup(s.drain)
	return s
}
