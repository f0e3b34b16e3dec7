// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

func TestGenerateToken(t *testing.T) {
	t.Run("returns 64 hex chars and matching hash", func(t *testing.T) {
		raw, hash, err := auth.GenerateToken(rand.Reader)
		require.NoError(t, err)
		assert.Len(t, raw, 2*auth.ResetTokenBytes)
		_, err = hex.DecodeString(raw)
		require.NoError(t, err)
		assert.Equal(t, auth.HashToken(raw), hash)
		assert.NotEqual(t, raw, hash)
	})

	t.Run("uses the supplied source", func(t *testing.T) {
		src := bytes.Repeat([]byte{0xab}, auth.ResetTokenBytes)
		raw, _, err := auth.GenerateToken(bytes.NewReader(src))
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(src), raw)
	})

	t.Run("successive tokens differ", func(t *testing.T) {
		raw1, _, err := auth.GenerateToken(rand.Reader)
		require.NoError(t, err)
		raw2, _, err := auth.GenerateToken(rand.Reader)
		require.NoError(t, err)
		assert.NotEqual(t, raw1, raw2)
	})

	t.Run("short read fails", func(t *testing.T) {
		_, _, err := auth.GenerateToken(bytes.NewReader(make([]byte, 8)))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_GENERATE_FAILED")
	})

	t.Run("reader error fails", func(t *testing.T) {
		_, _, err := auth.GenerateToken(iotest.ErrReader(assert.AnError))
		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestHashToken(t *testing.T) {
	// sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		auth.HashToken("abc"))
	assert.Equal(t, auth.HashToken("same"), auth.HashToken("same"))
}
