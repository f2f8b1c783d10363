// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
)

// Observer is notified around every delivery attempt.
type Observer interface {
	OnAttempt(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int)
	OnSuccess(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res a2a.PushDeliveryAttempt)
	OnFailure(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res a2a.PushDeliveryAttempt, willRetry bool)
}

// LoggingObserver logs attempts and successes at debug level and failures
// at warn level.
type LoggingObserver struct {
	logger *slog.Logger
}

var _ Observer = (*LoggingObserver)(nil)

// NewLoggingObserver returns a LoggingObserver writing to logger, or to
// [slog.Default] when logger is nil.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

// OnAttempt implements [Observer].
func (o *LoggingObserver) OnAttempt(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) {
	o.logger.DebugContext(ctx, "push delivery attempt",
		slog.String("config_id", cfg.ConfigID),
		slog.String("task_id", ev.TaskID),
		slog.Int64("sequence", ev.Sequence),
		slog.Int("attempt", attempt),
	)
}

// OnSuccess implements [Observer].
func (o *LoggingObserver) OnSuccess(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res a2a.PushDeliveryAttempt) {
	o.logger.DebugContext(ctx, "push delivered",
		slog.String("config_id", cfg.ConfigID),
		slog.String("task_id", ev.TaskID),
		slog.Int64("sequence", ev.Sequence),
		slog.Int("status_code", res.StatusCode),
	)
}

// OnFailure implements [Observer].
func (o *LoggingObserver) OnFailure(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res a2a.PushDeliveryAttempt, willRetry bool) {
	o.logger.WarnContext(ctx, "push delivery failed",
		slog.String("config_id", cfg.ConfigID),
		slog.String("endpoint", cfg.EndpointURL),
		slog.String("task_id", ev.TaskID),
		slog.Int("attempt", res.AttemptNumber),
		slog.Int("status_code", res.StatusCode),
		slog.String("error", res.ErrorMessage),
		slog.Bool("will_retry", willRetry),
	)
}

// MetricsObserver records attempts and outcomes on the telemetry instruments.
type MetricsObserver struct {
	metrics *telemetry.Metrics
}

var _ Observer = (*MetricsObserver)(nil)

// NewMetricsObserver returns a MetricsObserver recording on m.
func NewMetricsObserver(m *telemetry.Metrics) *MetricsObserver {
	if m == nil {
		m = telemetry.DefaultMetrics()
	}
	return &MetricsObserver{metrics: m}
}

// OnAttempt implements [Observer].
func (o *MetricsObserver) OnAttempt(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) {
	o.metrics.PushAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("a2a.push.global", cfg.TaskID == "")))
}

// OnSuccess implements [Observer].
func (o *MetricsObserver) OnSuccess(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res a2a.PushDeliveryAttempt) {
	o.metrics.PushDeliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.push.outcome", "success")))
}

// OnFailure implements [Observer].
func (o *MetricsObserver) OnFailure(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res a2a.PushDeliveryAttempt, willRetry bool) {
	outcome := "failure"
	if willRetry {
		outcome = "retry"
	}
	o.metrics.PushDeliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.push.outcome", outcome)))
}
