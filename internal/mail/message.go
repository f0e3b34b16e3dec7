// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/internal/auth"
)

// compose renders msg as an RFC 5322 message. A message with both text and
// HTML bodies becomes multipart/alternative with the text part first.
func compose(from *mail.Address, msg auth.Message, now time.Time) ([]byte, error) {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err)
	}
	if msg.Text == "" && msg.HTML == "" {
		return nil, oops.Code("MAIL_EMPTY_BODY").Errorf("message has no body")
	}

	var buf bytes.Buffer
	header := textproto.MIMEHeader{}
	header.Set("From", from.String())
	header.Set("To", to.String())
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", now.Format(time.RFC1123Z))
	header.Set("Message-ID", fmt.Sprintf("<%s@%s>", ulid.Make().String(), domainOf(from.Address)))
	header.Set("MIME-Version", "1.0")

	switch {
	case msg.Text != "" && msg.HTML != "":
		mw := multipart.NewWriter(&buf)
		header.Set("Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()}))
		writeHeader(&buf, header)
		if err := writePart(mw, "text/plain", msg.Text); err != nil {
			return nil, err
		}
		if err := writePart(mw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
		}
	case msg.HTML != "":
		header.Set("Content-Type", `text/html; charset="utf-8"`)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, header)
		if err := writeQP(&buf, msg.HTML); err != nil {
			return nil, err
		}
	default:
		header.Set("Content-Type", `text/plain; charset="utf-8"`)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, header)
		if err := writeQP(&buf, msg.Text); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// headerOrder keeps the rendered header stable.
var headerOrder = []string{
	"From", "To", "Subject", "Date", "Message-ID",
	"MIME-Version", "Content-Type", "Content-Transfer-Encoding",
}

func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	for _, key := range headerOrder {
		if v := header.Get(key); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+`; charset="utf-8"`)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mw.CreatePart(h)
	if err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
	}
	if err := qp.Close(); err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
	}
	return nil
}

func writeQP(buf *bytes.Buffer, body string) error {
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
	}
	if err := qp.Close(); err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").Wrap(err)
	}
	return nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}
