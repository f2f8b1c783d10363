// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"time"
)

// StatusUp is reported by the health and diagnostics endpoints.
const StatusUp = "UP"

// Diagnostics is the payload of the diagnostics endpoint.
type Diagnostics struct {
	Status            string               `json:"status"`
	Timestamp         time.Time            `json:"timestamp"`
	Tasks             TaskDiagnostics      `json:"tasks"`
	Streaming         StreamingDiagnostics `json:"streaming"`
	PushNotifications PushDiagnostics      `json:"pushNotifications"`
	SupportedMethods  []string             `json:"supportedMethods"`
}

// TaskDiagnostics counts known tasks.
type TaskDiagnostics struct {
	Total int `json:"total"`
}

// StreamingDiagnostics reports the state of the event log.
type StreamingDiagnostics struct {
	ActiveSubscriptions int `json:"activeSubscriptions"`
	BufferedEvents      int `json:"bufferedEvents"`
}

// PushDiagnostics reports push notification configs and delivery counters.
type PushDiagnostics struct {
	Configs   int   `json:"configs"`
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Diagnostics collects a snapshot of the server counters.
func (s *Server) Diagnostics(ctx context.Context) (*Diagnostics, error) {
	tasks, err := s.tasks.ListTasks(ctx, nil)
	if err != nil {
		return nil, err
	}
	stats := s.push.Stats()

	return &Diagnostics{
		Status:    StatusUp,
		Timestamp: s.now(),
		Tasks:     TaskDiagnostics{Total: len(tasks)},
		Streaming: StreamingDiagnostics{
			ActiveSubscriptions: s.events.ActiveSubscriptionCount(),
			BufferedEvents:      s.events.BufferedEventCount(),
		},
		PushNotifications: PushDiagnostics{
			Configs:   s.push.Count(),
			Attempts:  stats.Attempts,
			Successes: stats.Successes,
			Failures:  stats.Failures,
		},
		SupportedMethods: s.handler.Methods(),
	}, nil
}
