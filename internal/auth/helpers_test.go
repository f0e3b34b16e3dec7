// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jobmarket/jobmarket/internal/auth"
)

const testBaseURL = "https://jobs.example.com"

// plainHasher stores passwords with a marker prefix so service tests avoid
// the cost of argon2.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	if !strings.HasPrefix(hash, "plain$") {
		return false, errors.New("unsupported hash")
	}
	return hash == "plain$"+password, nil
}

func (plainHasher) NeedsUpgrade(hash string) bool {
	return strings.HasPrefix(hash, "legacy$")
}

// logBuffer collects JSON log lines written by concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newCaptureLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// entries decodes every log line.
func (b *logBuffer) entries(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

// find returns the first entry with msg, or nil.
func (b *logBuffer) find(t *testing.T, msg string) map[string]any {
	t.Helper()
	for _, e := range b.entries(t) {
		if e["msg"] == msg {
			return e
		}
	}
	return nil
}
