// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the tracer, the metric instruments and the OTLP
// bootstrap shared by the server packages.
package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter of this module.
const InstrumentationName = "github.com/go-a2a/a2a-taskd"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Metrics is the set of instruments recorded by the server.
type Metrics struct {
	RPCCalls        metric.Int64Counter
	RPCLatency      metric.Float64Histogram
	TaskTransitions metric.Int64Counter
	EventsPublished metric.Int64Counter
	PushAttempts    metric.Int64Counter
	PushDeliveries  metric.Int64Counter
}

// NewMetrics creates the instruments on m. An instrument that cannot be
// created is reported through [otel.Handle] and replaced by a noop.
func NewMetrics(m metric.Meter) *Metrics {
	var (
		ms  Metrics
		err error
	)

	ms.RPCCalls, err = m.Int64Counter("a2a.rpc.calls",
		metric.WithDescription("Count of dispatched JSON-RPC calls"),
	)
	if err != nil {
		otel.Handle(err)
		ms.RPCCalls = noop.Int64Counter{}
	}

	ms.RPCLatency, err = m.Float64Histogram("a2a.rpc.latency",
		metric.WithDescription("Latency of JSON-RPC calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		otel.Handle(err)
		ms.RPCLatency = noop.Float64Histogram{}
	}

	ms.TaskTransitions, err = m.Int64Counter("a2a.task.transitions",
		metric.WithDescription("Count of accepted task state transitions"),
	)
	if err != nil {
		otel.Handle(err)
		ms.TaskTransitions = noop.Int64Counter{}
	}

	ms.EventsPublished, err = m.Int64Counter("a2a.events.published",
		metric.WithDescription("Count of task events appended to the event log"),
	)
	if err != nil {
		otel.Handle(err)
		ms.EventsPublished = noop.Int64Counter{}
	}

	ms.PushAttempts, err = m.Int64Counter("a2a.push.attempts",
		metric.WithDescription("Count of webhook delivery attempts"),
	)
	if err != nil {
		otel.Handle(err)
		ms.PushAttempts = noop.Int64Counter{}
	}

	ms.PushDeliveries, err = m.Int64Counter("a2a.push.deliveries",
		metric.WithDescription("Count of finished webhook deliveries by outcome"),
	)
	if err != nil {
		otel.Handle(err)
		ms.PushDeliveries = noop.Int64Counter{}
	}

	return &ms
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the instruments created on the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(otel.Meter(InstrumentationName))
	})
	return defaultMetrics
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	return NewMetrics(noop.NewMeterProvider().Meter(InstrumentationName))
}
