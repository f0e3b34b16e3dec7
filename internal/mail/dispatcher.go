// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// ErrNotification marks a message that was not, or could not be, delivered.
var ErrNotification = errors.New("notification not dispatched")

// Outcome is the final state of a message handed to the Dispatcher.
type Outcome string

// Dispatch outcomes reported to an Observer.
const (
	OutcomeQueued   Outcome = "queued"
	OutcomeRejected Outcome = "rejected"
	OutcomeSent     Outcome = "sent"
	OutcomeFailed   Outcome = "failed"
	OutcomeDropped  Outcome = "dropped"
)

// Observer is told about every dispatch outcome.
type Observer func(Outcome)

// DispatcherConfig configures a Dispatcher. Zero values take defaults.
type DispatcherConfig struct {
	// QueueSize is the number of messages buffered before Send fails. Default 100.
	QueueSize int
	// Workers is the number of concurrent deliveries. Default 1.
	Workers int
	// MaxAttempts is the number of delivery attempts per message. Default 3.
	MaxAttempts uint64
	// BaseDelay is the first retry interval. Default 1s.
	BaseDelay time.Duration
	// MaxDelay caps the retry interval. Default 30s.
	MaxDelay time.Duration
	// AttemptTimeout bounds a single delivery attempt. Default 30s.
	AttemptTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	return c
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver registers a callback for dispatch outcomes.
func WithObserver(obs Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if obs != nil {
			d.observe = obs
		}
	}
}

// Dispatcher implements auth.Notifier by queueing messages for background
// delivery. Send never blocks on the mail server.
type Dispatcher struct {
	transport Transport
	cfg       DispatcherConfig
	logger    *slog.Logger
	observe   Observer

	queue  chan auth.Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ auth.Notifier = (*Dispatcher)(nil)

// NewDispatcher starts the delivery workers. Call Close to stop them.
func NewDispatcher(transport Transport, cfg DispatcherConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if transport == nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("transport is required")
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		transport: transport,
		cfg:       cfg,
		logger:    slog.Default(),
		observe:   func(Outcome) {},
		queue:     make(chan auth.Message, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	for range cfg.Workers {
		d.wg.Add(1)
		go d.run()
	}
	return d, nil
}

// Send queues msg for delivery. It fails with ErrNotification when the
// queue is full or the dispatcher is closed; delivery errors are logged by
// the worker.
func (d *Dispatcher) Send(ctx context.Context, msg auth.Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.observe(OutcomeRejected)
		return oops.Code("MAIL_DISPATCHER_CLOSED").Wrap(ErrNotification)
	}

	select {
	case d.queue <- msg:
		d.observe(OutcomeQueued)
		d.logger.DebugContext(ctx, "mail queued", "subject", msg.Subject, "queued", len(d.queue))
		return nil
	default:
		d.observe(OutcomeRejected)
		return oops.Code("MAIL_QUEUE_FULL").With("queue_size", d.cfg.QueueSize).Wrap(ErrNotification)
	}
}

// Close stops accepting messages and waits for queued ones to be
// delivered. If ctx ends first, in-flight retries are abandoned, the rest
// of the queue is dropped, and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
		drainErr = oops.Code("MAIL_DRAIN_INCOMPLETE").Wrap(ctx.Err())
	}
	d.cancel()

	if err := d.transport.Close(); err != nil {
		errutil.Log(ctx, d.logger, slog.LevelWarn, "mail transport close failed", err)
	}
	return drainErr
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg auth.Message) {
	if d.ctx.Err() != nil {
		d.observe(OutcomeDropped)
		d.logger.Warn("mail dropped on shutdown", "subject", msg.Subject)
		return
	}

	attempt := 0
	err := retry.Do(d.ctx, d.backoff(), func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()

		err := d.transport.Deliver(attemptCtx, msg)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return err
		default:
			d.logger.DebugContext(ctx, "mail delivery attempt failed",
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		d.observe(OutcomeFailed)
		errutil.Log(d.ctx, d.logger, slog.LevelError, "mail delivery failed",
			oops.Code("MAIL_DELIVERY_FAILED").
				With("subject", msg.Subject).
				With("attempts", attempt).
				With("permanent", IsPermanent(err)).
				Wrap(errors.Join(ErrNotification, err)))
		return
	}

	d.observe(OutcomeSent)
	d.logger.Info("mail delivered", "subject", msg.Subject, "attempts", attempt)
}

func (d *Dispatcher) backoff() retry.Backoff {
	b := retry.NewExponential(d.cfg.BaseDelay)
	b = retry.WithCappedDuration(d.cfg.MaxDelay, b)
	return retry.WithMaxRetries(d.cfg.MaxAttempts-1, b)
}
