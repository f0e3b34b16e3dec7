// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package authtest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/jobmarket/jobmarket/internal/auth"
)

// Outbox is a Notifier that records every message it accepts.
type Outbox struct {
	mu       sync.Mutex
	messages []auth.Message
	err      error
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// FailWith makes every following Send return err. A nil err restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Send implements auth.Notifier.
func (o *Outbox) Send(_ context.Context, msg auth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns a copy of the delivered messages.
func (o *Outbox) Messages() []auth.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]auth.Message(nil), o.messages...)
}

// LastToken extracts the raw token from the link of the most recent message.
// It returns "" if nothing was delivered.
func (o *Outbox) LastToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		return ""
	}
	return ExtractToken(o.messages[len(o.messages)-1].Text)
}

// ExtractToken finds the first URL carrying a token query parameter in body
// and returns that parameter.
func ExtractToken(body string) string {
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '<' || r == '>'
	})
	for _, field := range fields {
		u, err := url.Parse(field)
		if err != nil || u.Scheme == "" {
			continue
		}
		if tok := u.Query().Get("token"); tok != "" {
			return tok
		}
	}
	return ""
}

var _ auth.Notifier = (*Outbox)(nil)
