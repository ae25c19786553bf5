// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/gatekeeper/internal/store"
)

var (
	suiteCtx  context.Context
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
)

func TestPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Postgres Suite")
}

var _ = BeforeSuite(func() {
	suiteCtx = context.Background()
	var err error
	container, err = tcpostgres.Run(suiteCtx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatekeeper_test"),
		tcpostgres.WithUsername("gatekeeper"),
		tcpostgres.WithPassword("gatekeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(suiteCtx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.OpenPool(suiteCtx, connStr, store.DefaultPoolConfig())
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		_ = container.Terminate(suiteCtx)
	}
})

// truncate resets every auth table between specs.
func truncate() {
	_, err := pool.Exec(suiteCtx, `TRUNCATE credentials, sessions, password_resets CASCADE`)
	Expect(err).NotTo(HaveOccurred())
}
