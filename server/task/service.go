// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the task lifecycle: creation from submitted
// messages with idempotent deduplication, guarded state transitions, per-task
// status history and listing. [InMemoryService] keeps everything in process;
// [PersistentService] additionally snapshots every task into a
// [flowstore.Store] so that a new process rediscovers tasks and idempotency
// keys.
package task

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
)

// Service defines the task lifecycle operations.
type Service interface {
	// SendMessage creates a task for the message, or returns the task already
	// created for the same idempotency key.
	SendMessage(ctx context.Context, req *a2a.SendMessageRequest) (*a2a.Task, error)

	// GetTask returns the task with the given id.
	GetTask(ctx context.Context, taskID string) (*a2a.Task, error)

	// ListTasks returns the tasks matching the optional state filter, oldest first.
	ListTasks(ctx context.Context, req *a2a.ListTasksRequest) ([]*a2a.Task, error)

	// CancelTask moves a task to CANCELED.
	CancelTask(ctx context.Context, req *a2a.CancelTaskRequest) (*a2a.Task, error)

	// TransitionTask moves a task to target. Requesting the current state is a no-op.
	TransitionTask(ctx context.Context, taskID string, target a2a.TaskState, reason string) (*a2a.Task, error)

	// GetTaskHistory returns every status the task went through, oldest first.
	GetTaskHistory(ctx context.Context, taskID string) ([]a2a.TaskStatus, error)
}

// Publisher receives every task status change.
type Publisher interface {
	PublishTaskUpdate(ctx context.Context, task *a2a.Task) error
}

// PublisherFunc adapts a function to a [Publisher].
type PublisherFunc func(ctx context.Context, task *a2a.Task) error

// PublishTaskUpdate calls f(ctx, task).
func (f PublisherFunc) PublishTaskUpdate(ctx context.Context, task *a2a.Task) error {
	return f(ctx, task)
}

type noopPublisher struct{}

func (noopPublisher) PublishTaskUpdate(context.Context, *a2a.Task) error { return nil }

// Option represents an option for configuring a task service.
type Option func(*core)

// WithPublisher sets the [Publisher] notified of every status change.
func WithPublisher(p Publisher) Option {
	return func(c *core) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithLogger sets the [*slog.Logger] of the service.
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		c.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] of the service.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *core) {
		c.tracer = tracer
	}
}

// WithMetrics sets the metric instruments of the service.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *core) {
		c.metrics = m
	}
}
