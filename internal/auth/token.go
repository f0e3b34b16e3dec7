// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/samber/oops"
)

// ResetTokenBytes is the entropy of a raw reset token: 32 bytes = 64 hex chars.
const ResetTokenBytes = 32

// GenerateToken reads ResetTokenBytes from r and returns the hex encoded raw
// token together with its storage hash. The raw token goes to the user; only
// the hash is persisted.
func GenerateToken(r io.Reader) (raw, hash string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}

	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the hex encoded SHA-256 digest of a raw token.
// Raw tokens are high-entropy, so no salt or key stretching is applied and
// the result can be looked up by equality.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
