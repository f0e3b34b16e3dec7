// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"math"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"
)

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers messages to users. Send may fail; the password reset
// flow logs such failures and never surfaces them to its caller.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

const resetSubject = "Reset your password"

//go:embed templates/reset.txt.tmpl templates/reset.html.tmpl
var templatesFS embed.FS

var (
	resetTextTemplate = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/reset.txt.tmpl"))
	resetHTMLTemplate = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/reset.html.tmpl"))
)

type resetMailData struct {
	Link    string
	Minutes int
}

// renderResetMessage builds the reset email for a link that stays valid for ttl.
func renderResetMessage(to, link string, ttl time.Duration) (Message, error) {
	data := resetMailData{
		Link:    link,
		Minutes: int(math.Ceil(ttl.Minutes())),
	}

	var text, html bytes.Buffer
	if err := resetTextTemplate.Execute(&text, data); err != nil {
		return Message{}, oops.Code("RESET_MAIL_RENDER_FAILED").With("format", "text").Wrap(err)
	}
	if err := resetHTMLTemplate.Execute(&html, data); err != nil {
		return Message{}, oops.Code("RESET_MAIL_RENDER_FAILED").With("format", "html").Wrap(err)
	}

	return Message{
		To:      to,
		Subject: resetSubject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
