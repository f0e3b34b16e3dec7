// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/internal/auth"
)

// Transport hands a single message to a mail server.
type Transport interface {
	Deliver(ctx context.Context, msg auth.Message) error
	Close() error
}

// implicitTLSPort is the SMTPS submission port.
const implicitTLSPort = 465

const defaultSMTPTimeout = 10 * time.Second

// SMTPConfig configures an SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Timeout bounds dialing and each delivery. Zero means 10s.
	Timeout time.Duration

	// TLSConfig overrides the client TLS configuration. ServerName defaults
	// to Host.
	TLSConfig *tls.Config
}

// SMTPTransport delivers mail over one long-lived SMTP connection. Port 465
// uses implicit TLS; any other port upgrades with STARTTLS when the server
// offers it. Deliveries are serialized.
type SMTPTransport struct {
	cfg    SMTPConfig
	addr   string
	from   *mail.Address
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	conn   net.Conn
	client *smtp.Client
}

// NewSMTPTransport validates cfg and returns a transport. The connection is
// opened lazily on first delivery.
func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("from", cfg.From).Wrap(err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SMTPTransport{
		cfg:    cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:   from,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Deliver sends msg, dialing or redialing the server as needed. After a
// failed delivery the connection is discarded so the next call starts clean.
func (t *SMTPTransport) Deliver(ctx context.Context, msg auth.Message) error {
	body, err := compose(t.from, msg, t.now())
	if err != nil {
		return permanent(err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return permanent(oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	client, err := t.connection(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetDeadline(deadline)

	if err := t.send(client, to.Address, body); err != nil {
		t.discard()
		if isPermanentReply(err) {
			return permanent(err)
		}
		return err
	}
	return nil
}

func (t *SMTPTransport) send(client *smtp.Client, to string, body []byte) error {
	if err := client.Mail(t.from.Address); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "mail from").Wrap(err)
	}
	if err := client.Rcpt(to); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "rcpt to").Wrap(err)
	}
	w, err := client.Data()
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "data").Wrap(err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return oops.Code("MAIL_SEND_FAILED").With("operation", "write body").Wrap(err)
	}
	if err := w.Close(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "end data").Wrap(err)
	}
	return nil
}

// connection returns the live client, redialing when the server no longer
// answers NOOP.
func (t *SMTPTransport) connection(ctx context.Context) (*smtp.Client, error) {
	if t.client != nil {
		_ = t.conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
		if err := t.client.Noop(); err == nil {
			return t.client, nil
		}
		t.logger.DebugContext(ctx, "smtp connection lost, redialing", "addr", t.addr)
		t.discard()
	}

	if err := t.dial(ctx); err != nil {
		return nil, err
	}
	return t.client, nil
}

func (t *SMTPTransport) dial(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.Port == implicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", t.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", t.addr)
	}
	if err != nil {
		return oops.Code("MAIL_CONNECT_FAILED").With("addr", t.addr).Wrap(err)
	}
	_ = conn.SetDeadline(time.Now().Add(t.cfg.Timeout))

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return oops.Code("MAIL_CONNECT_FAILED").With("addr", t.addr).With("operation", "greeting").Wrap(err)
	}

	if t.cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.tlsConfig()); err != nil {
				_ = client.Close()
				return oops.Code("MAIL_CONNECT_FAILED").With("addr", t.addr).With("operation", "starttls").Wrap(err)
			}
		}
	}

	if t.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			_ = client.Close()
			return permanent(oops.Code("MAIL_AUTH_UNSUPPORTED").With("addr", t.addr).Errorf("server does not support AUTH"))
		}
		plain := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(plain); err != nil {
			_ = client.Close()
			return oops.Code("MAIL_AUTH_FAILED").With("addr", t.addr).Wrap(err)
		}
	}

	t.conn = conn
	t.client = client
	t.logger.DebugContext(ctx, "smtp connected", "addr", t.addr)
	return nil
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	if t.cfg.TLSConfig != nil {
		cfg := t.cfg.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = t.cfg.Host
		}
		return cfg
	}
	return &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
}

// discard drops the current connection without a QUIT.
func (t *SMTPTransport) discard() {
	if t.client != nil {
		_ = t.client.Close()
	}
	t.client = nil
	t.conn = nil
}

// Close sends QUIT and closes the connection if one is open.
func (t *SMTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	_ = t.conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	err := t.client.Quit()
	if err != nil {
		_ = t.client.Close()
	}
	t.client = nil
	t.conn = nil
	if err != nil {
		return oops.Code("MAIL_CLOSE_FAILED").With("addr", t.addr).Wrap(err)
	}
	return nil
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// isPermanentReply reports whether the server answered with a 5xx code.
func isPermanentReply(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}
