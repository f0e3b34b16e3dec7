// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is the query surface shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// conn returns the transaction carried by ctx, or db outside a transaction.
func conn(ctx context.Context, db DB) (querier, bool) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, true
	}
	return db, false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Transactor implements auth.Transactor. The active pgx.Tx travels in the
// context so repository calls made inside fn join the transaction.
type Transactor struct {
	db     DB
	logger *slog.Logger
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db DB, logger *slog.Logger) *Transactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{db: db, logger: logger}
}

// InTransaction begins a transaction, calls fn and commits if fn returns nil.
// Otherwise the transaction is rolled back and fn's error returned. A call
// nested inside another transaction reuses it.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			t.logger.WarnContext(ctx, "transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
