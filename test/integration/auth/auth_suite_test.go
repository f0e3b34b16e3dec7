// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

//go:build integration

// Package auth_test runs the account and password reset flows against a
// real PostgreSQL and an in-memory Redis.
package auth_test

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

	"github.com/jobmarket/jobmarket/internal/store"
)

var (
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
)

func TestAuthIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Integration Suite")
}

var _ = BeforeSuite(func() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	container, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("jobmarket_test"),
		tcpostgres.WithUsername("jobmarket"),
		tcpostgres.WithPassword("jobmarket"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(ctx, connStr, store.ConnectOptions{})
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		Expect(container.Terminate(context.Background())).To(Succeed())
	}
})

// truncate empties the tables between specs.
func truncate() {
	_, err := pool.Exec(context.Background(), `TRUNCATE reset_tokens, users`)
	Expect(err).NotTo(HaveOccurred())
}
