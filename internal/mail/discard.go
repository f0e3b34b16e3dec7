// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/jobmarket/jobmarket/internal/auth"
)

// DiscardTransport drops every message. It is used when no SMTP host is
// configured so the service can run without a mail server.
type DiscardTransport struct {
	logger *slog.Logger
}

// NewDiscardTransport returns a transport that logs and drops messages.
func NewDiscardTransport(logger *slog.Logger) *DiscardTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscardTransport{logger: logger}
}

// Deliver logs the subject and drops the message. Bodies are never logged.
func (d *DiscardTransport) Deliver(ctx context.Context, msg auth.Message) error {
	d.logger.WarnContext(ctx, "mail delivery disabled, message dropped", "subject", msg.Subject)
	return nil
}

// Close is a no-op.
func (d *DiscardTransport) Close() error { return nil }
