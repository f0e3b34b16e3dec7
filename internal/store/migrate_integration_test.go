// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

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

	"github.com/jobmarket/jobmarket/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("jobmarket_test"),
			postgres.WithUsername("jobmarket"),
			postgres.WithPassword("jobmarket"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("runs the full up/down cycle", func() {
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
		Expect(latest).To(Equal(uint(2)))

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest - 1))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
	})

	It("connects with retry and sees the schema", func() {
		pool, err := store.Connect(ctx, connStr, store.ConnectOptions{Attempts: 3})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var n int
		Expect(pool.QueryRow(ctx,
			`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('users', 'reset_tokens')`,
		).Scan(&n)).To(Succeed())
		Expect(n).To(Equal(2))
	})

	It("enforces case-insensitive email uniqueness", func() {
		pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		_, err = pool.Exec(ctx, `INSERT INTO users (id, email, password_hash, role) VALUES ('a', 'x@y.co', 'h', 'candidate')`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `INSERT INTO users (id, email, password_hash, role) VALUES ('b', 'X@Y.CO', 'h', 'candidate')`)
		Expect(err).To(HaveOccurred())
	})
})
