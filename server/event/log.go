// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package event implements the per-task event log: every task status change
// becomes a sequenced [a2a.TaskEvent] kept in a bounded buffer, readable by
// cursor through subscriptions, rendered as server-sent events and fanned out
// to listeners such as the push notification dispatcher.
package event

import (
	"context"
	"log/slog"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
)

// Capacity limits of the per-task buffer and of a single read.
const (
	DefaultCapacity = 256
	MinCapacity     = 16
	DefaultReadSize = 100
	MaxReadSize     = 500
)

// Listener receives every published event. A panicking listener is logged
// and does not affect the log or the other listeners.
type Listener func(ctx context.Context, ev a2a.TaskEvent)

// Log is the event log and subscription registry.
type Log interface {
	// PublishTaskUpdate appends an event for the current status of task.
	// Tasks without an id or a state are ignored.
	PublishTaskUpdate(ctx context.Context, task *a2a.Task) error

	// CreateSubscription opens a cursor on the events of taskID after afterSequence.
	CreateSubscription(ctx context.Context, taskID string, afterSequence int64) (*a2a.TaskSubscription, error)

	// ReadEvents returns up to limit events of taskID with a sequence greater than afterSequence.
	ReadEvents(ctx context.Context, taskID string, afterSequence int64, limit int) ([]a2a.TaskEvent, error)

	// Acknowledge advances a subscription cursor. Unknown ids are ignored.
	Acknowledge(ctx context.Context, subscriptionID string, lastDelivered int64, terminal bool)

	// GetSubscription returns a copy of a subscription.
	GetSubscription(subscriptionID string) (*a2a.TaskSubscription, bool)

	// IsTaskTerminal reports whether the last event of taskID is terminal.
	IsTaskTerminal(ctx context.Context, taskID string) (bool, error)

	// CleanupTerminalSubscriptions removes terminal subscriptions and returns how many were removed.
	CleanupTerminalSubscriptions() int

	// ActiveSubscriptionCount returns the number of non-terminal subscriptions.
	ActiveSubscriptionCount() int

	// BufferedEventCount returns the number of events held in memory.
	BufferedEventCount() int

	// AddListener registers fn for every event published after the call.
	AddListener(fn Listener)
}

// Option represents an option for configuring an [InMemoryLog].
type Option func(*InMemoryLog)

// WithCapacity sets the number of events kept per task. Values below
// [MinCapacity] are raised to it.
func WithCapacity(n int) Option {
	return func(l *InMemoryLog) {
		l.capacity = max(MinCapacity, n)
	}
}

// WithLogger sets the [*slog.Logger] of the log.
func WithLogger(logger *slog.Logger) Option {
	return func(l *InMemoryLog) {
		l.logger = logger
	}
}

// WithMetrics sets the metric instruments of the log.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *InMemoryLog) {
		l.metrics = m
	}
}

func resolveReadSize(limit int) int {
	if limit <= 0 {
		return DefaultReadSize
	}
	return min(limit, MaxReadSize)
}
