// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/server/event"
)

// handleStream renders the due events of a task as server-sent events. Each
// request delivers one batch; clients reconnect with a higher afterSequence.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "a2a.server.Stream")
	defer span.End()

	req := event.ParseStreamRequest(r.PathValue("taskId"), r.URL.Query())
	span.SetAttributes(
		attribute.String("a2a.task_id", req.TaskID),
		attribute.String("a2a.subscription_id", req.SubscriptionID),
		attribute.Int64("a2a.after_sequence", req.AfterSequence),
	)

	// Headers are only committed by the first write of Stream.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For Nginx proxy

	res, err := event.Stream(ctx, w, s.events, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if res.Delivered > 0 {
			s.logger.WarnContext(ctx, "sse stream interrupted", slog.String("task_id", req.TaskID), slog.String("error", err.Error()))
			return
		}
		status := http.StatusInternalServerError
		if a2a.IsInvalidParams(err) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	span.SetAttributes(attribute.Int("a2a.delivered", res.Delivered), attribute.Bool("a2a.terminal", res.Terminal))
	s.logger.DebugContext(ctx, "sse batch delivered",
		slog.String("task_id", req.TaskID),
		slog.Int("events", res.Delivered),
		slog.Int64("last_sequence", res.LastSequence),
		slog.Bool("terminal", res.Terminal),
	)
}
