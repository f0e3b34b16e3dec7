// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package errutil connects oops errors to structured logging and tests.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Attrs returns slog key/value pairs describing err. For oops errors it
// includes the code and the merged context map.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// Log logs err at level with its structured attributes. A nil err is ignored.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error) {
	if err == nil {
		return
	}
	logger.Log(ctx, level, msg, Attrs(err)...)
}

// LogError logs an error at error level with structured context.
func LogError(logger *slog.Logger, msg string, err error) {
	Log(context.Background(), logger, slog.LevelError, msg, err)
}
