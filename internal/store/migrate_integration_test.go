// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/gatekeeper/internal/store"
)

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("gatekeeper_test"),
			postgres.WithUsername("gatekeeper"),
			postgres.WithPassword("gatekeeper"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())
		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = container.Terminate(ctx)
	})

	It("runs a full up, step and down cycle", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer migrator.Close()

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
		latest, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(latest).To(Equal(uint(3)))

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, _ = migrator.Version()
		Expect(version).To(Equal(latest - 1))

		Expect(migrator.Steps(1)).To(Succeed())
		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(migrator.Down()).To(Succeed())
		version, _, _ = migrator.Version()
		Expect(version).To(BeZero())
	})

	It("opens a pool against the migrated schema", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err := store.OpenPool(ctx, connStr, store.DefaultPoolConfig())
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var tables int
		err = pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables
			WHERE table_name IN ('credentials', 'sessions', 'password_resets')`).Scan(&tables)
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(Equal(3))
	})
})
