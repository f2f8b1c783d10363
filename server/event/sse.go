// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/pool"
)

// SSE event names written besides the task event types.
const (
	SSEEventComplete = "complete"
	SSEEventClose    = "close"
)

// StreamRequest selects the events rendered by [Stream].
type StreamRequest struct {
	TaskID         string
	SubscriptionID string
	AfterSequence  int64
	Limit          int
}

// ParseStreamRequest reads the subscriptionId, afterSequence and limit query
// parameters. Missing or malformed numbers fall back to 0 and
// [DefaultReadSize].
func ParseStreamRequest(taskID string, query url.Values) StreamRequest {
	return StreamRequest{
		TaskID:         taskID,
		SubscriptionID: query.Get("subscriptionId"),
		AfterSequence:  parseInt(query.Get("afterSequence"), 0),
		Limit:          int(parseInt(query.Get("limit"), DefaultReadSize)),
	}
}

func parseInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// StreamResult describes what [Stream] delivered.
type StreamResult struct {
	Delivered    int
	LastSequence int64
	Terminal     bool
}

// Stream renders the due events of req.TaskID to w, then acknowledges the
// subscription and, when the task is terminal, removes terminal subscriptions.
func Stream(ctx context.Context, w io.Writer, log Log, req StreamRequest) (StreamResult, error) {
	if req.TaskID == "" {
		return StreamResult{}, a2a.NewInvalidParamsError("SSE requires taskId path parameter")
	}

	events, err := log.ReadEvents(ctx, req.TaskID, req.AfterSequence, req.Limit)
	if err != nil {
		return StreamResult{}, err
	}

	res := StreamResult{Delivered: len(events), LastSequence: req.AfterSequence}
	for _, ev := range events {
		res.LastSequence = ev.Sequence
		res.Terminal = res.Terminal || ev.Terminal
	}
	if !res.Terminal {
		if res.Terminal, err = log.IsTaskTerminal(ctx, req.TaskID); err != nil {
			return StreamResult{}, err
		}
	}

	if err := RenderStream(w, req.TaskID, events, res.Terminal); err != nil {
		return res, err
	}

	log.Acknowledge(ctx, req.SubscriptionID, res.LastSequence, res.Terminal)
	if res.Terminal {
		log.CleanupTerminalSubscriptions()
	}
	return res, nil
}

// RenderStream writes one server-sent event block per event. For a terminal
// task it appends a complete block when no event is due, then a close block.
func RenderStream(w io.Writer, taskID string, events []a2a.TaskEvent, terminal bool) error {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	for _, ev := range events {
		data, err := sonic.ConfigStd.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		eventType := ev.EventType
		if eventType == "" {
			eventType = a2a.EventTypeTaskStatus
		}
		fmt.Fprintf(buf, "id: %d\nevent: %s\ndata: %s\n\n", ev.Sequence, eventType, data)
	}

	if terminal {
		if len(events) == 0 {
			data, err := sonic.ConfigStd.Marshal(map[string]any{"taskId": taskID, "terminal": true})
			if err != nil {
				return fmt.Errorf("failed to marshal complete marker: %w", err)
			}
			fmt.Fprintf(buf, "event: %s\ndata: %s\n\n", SSEEventComplete, data)
		}
		data, err := sonic.ConfigStd.Marshal(map[string]any{"taskId": taskID, "reason": "terminal"})
		if err != nil {
			return fmt.Errorf("failed to marshal close marker: %w", err)
		}
		fmt.Fprintf(buf, "event: %s\ndata: %s\n\n", SSEEventClose, data)
	}

	_, err := w.Write(buf.Bytes())
	return err
}
