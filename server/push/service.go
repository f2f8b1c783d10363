// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package push manages webhook registrations and delivers task events to
// them with bounded retries.
package push

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-a2a/a2a-taskd"
)

// Defaults applied to push notification configs and to the delivery engine.
const (
	DefaultMaxRetries     = 3
	DefaultRetryBackoffMs = 100
	DefaultListLimit      = 100

	DefaultRetryCap   = 8
	DefaultMaxBackoff = time.Second
)

// ConfigService registers webhooks and delivers task events to them.
type ConfigService interface {
	// Create registers a new config. Nil request fields select the defaults.
	Create(ctx context.Context, req *a2a.CreatePushNotificationConfigRequest) (*a2a.PushNotificationConfig, error)

	// Get returns the config with configID.
	Get(ctx context.Context, configID string) (*a2a.PushNotificationConfig, error)

	// List returns up to limit configs ordered by creation time. A blank
	// taskID lists every config; a nil limit selects [DefaultListLimit].
	List(ctx context.Context, taskID string, limit *int) ([]*a2a.PushNotificationConfig, error)

	// Delete removes a config and reports whether it existed.
	Delete(ctx context.Context, configID string) (bool, error)

	// OnTaskEvent delivers ev to every enabled config matching its task.
	// It blocks until delivery finished or ctx is done.
	OnTaskEvent(ctx context.Context, ev a2a.TaskEvent)

	// Stats returns the delivery counters.
	Stats() a2a.PushDeliveryStats

	// Count returns the number of registered configs.
	Count() int
}

// Notifier performs a single delivery of ev to the endpoint of cfg.
type Notifier interface {
	Notify(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) a2a.PushDeliveryAttempt
}

// NotifierFunc adapts a function to a [Notifier].
type NotifierFunc func(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) a2a.PushDeliveryAttempt

// Notify implements [Notifier].
func (f NotifierFunc) Notify(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) a2a.PushDeliveryAttempt {
	return f(ctx, cfg, ev, attempt)
}

// Option represents an option for configuring an [InMemoryConfigService].
type Option func(*InMemoryConfigService)

// WithObservers replaces the default [LoggingObserver].
func WithObservers(observers ...Observer) Option {
	return func(s *InMemoryConfigService) {
		s.observers = observers
		s.customObservers = true
	}
}

// WithRetryCap bounds the retries of any config. Negative values become 0.
func WithRetryCap(n int) Option {
	return func(s *InMemoryConfigService) {
		s.retryCap = max(0, n)
	}
}

// WithMaxBackoff bounds the wait between attempts of any config.
func WithMaxBackoff(d time.Duration) Option {
	return func(s *InMemoryConfigService) {
		s.maxBackoff = max(0, d)
	}
}

// WithLogger sets the [*slog.Logger] used by the default observer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *InMemoryConfigService) {
		s.logger = logger
	}
}
