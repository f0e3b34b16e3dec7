// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/ratelimit"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

var _ auth.Throttle = (*ratelimit.Limiter)(nil)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNew_Validation(t *testing.T) {
	_, rdb := newTestRedis(t)

	_, err := ratelimit.New(nil, ratelimit.Config{Limit: 1, Window: time.Second})
	errutil.AssertErrorCode(t, err, "RATELIMIT_INVALID")

	_, err = ratelimit.New(rdb, ratelimit.Config{Window: time.Second})
	errutil.AssertErrorCode(t, err, "RATELIMIT_INVALID")

	_, err = ratelimit.New(rdb, ratelimit.Config{Limit: 1})
	errutil.AssertErrorCode(t, err, "RATELIMIT_INVALID")
}

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l, err := ratelimit.New(rdb, ratelimit.Config{Prefix: "jm:test", Limit: 3, Window: time.Minute})
	require.NoError(t, err)

	for i := range 3 {
		ok, err := l.Allow(ctx, "user@test.com")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, err := l.Allow(ctx, "user@test.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "other@test.com")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	assert.True(t, mr.Exists("jm:test:user@test.com"))
	assert.Equal(t, time.Minute, mr.TTL("jm:test:user@test.com"))

	remaining, err := l.Remaining(ctx, "user@test.com")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, remaining)

	mr.FastForward(time.Minute)
	ok, err = l.Allow(ctx, "user@test.com")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestLimiter_AllowAlwaysLeavesExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l, err := ratelimit.New(rdb, ratelimit.Config{Prefix: "jm", Limit: 5, Window: time.Minute})
	require.NoError(t, err)

	t.Run("counter without ttl heals", func(t *testing.T) {
		require.NoError(t, mr.Set("jm:stuck", "2"))
		require.Zero(t, mr.TTL("jm:stuck"))

		ok, err := l.Allow(ctx, "stuck")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, time.Minute, mr.TTL("jm:stuck"))
	})

	t.Run("later attempts keep the window", func(t *testing.T) {
		_, err := l.Allow(ctx, "fixed")
		require.NoError(t, err)
		mr.FastForward(20 * time.Second)

		_, err = l.Allow(ctx, "fixed")
		require.NoError(t, err)
		assert.Equal(t, 40*time.Second, mr.TTL("jm:fixed"))
	})
}

func TestLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	l, err := ratelimit.New(rdb, ratelimit.Config{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	_, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	ok, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "k"))
	ok, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := l.Remaining(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestLimiter_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l, err := ratelimit.New(rdb, ratelimit.Config{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	mr.Close()

	_, err = l.Allow(ctx, "k")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "RATELIMIT_UNAVAILABLE")
	errutil.AssertErrorCode(t, l.Reset(ctx, "k"), "RATELIMIT_UNAVAILABLE")
}
