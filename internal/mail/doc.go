// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package mail delivers outbound email.
//
// A Dispatcher is constructed once at startup and injected wherever an
// auth.Notifier is needed. It queues messages and hands them to a Transport
// from a background worker, retrying transient failures with exponential
// backoff. SMTPTransport keeps a single SMTP connection open and redials it
// when the server drops it.
package mail
