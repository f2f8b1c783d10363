// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/pool"
)

// DefaultWebhookTimeout bounds a single webhook request.
const DefaultWebhookTimeout = 3 * time.Second

// webhookBody is the JSON document posted to a webhook endpoint.
type webhookBody struct {
	TaskID    string         `json:"taskId"`
	Sequence  int64          `json:"sequence"`
	EventType string         `json:"eventType"`
	State     a2a.TaskState  `json:"state"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Terminal  bool           `json:"terminal"`
	Payload   map[string]any `json:"payload"`
}

// WebhookNotifier is a [Notifier] posting events as JSON over HTTP.
type WebhookNotifier struct {
	client *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier returns a WebhookNotifier whose requests time out
// after timeout, or after [DefaultWebhookTimeout] when timeout is not positive.
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
	}
}

// NewWebhookNotifierWithClient returns a WebhookNotifier using client.
func NewWebhookNotifierWithClient(client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{client: client}
}

// Notify implements [Notifier]. Any non-2xx status is a failure.
func (n *WebhookNotifier) Notify(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) a2a.PushDeliveryAttempt {
	res := a2a.PushDeliveryAttempt{
		ConfigID:      cfg.ConfigID,
		EndpointURL:   cfg.EndpointURL,
		AttemptNumber: attempt,
	}

	if err := n.post(ctx, cfg, ev, &res); err != nil {
		res.Success = false
		res.ErrorMessage = err.Error()
	}
	return res
}

func (n *WebhookNotifier) post(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, res *a2a.PushDeliveryAttempt) error {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	err := sonic.ConfigStd.NewEncoder(buf).Encode(&webhookBody{
		TaskID:    ev.TaskID,
		Sequence:  ev.Sequence,
		EventType: ev.EventType,
		State:     ev.State,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
		Terminal:  ev.Terminal,
		Payload:   ev.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.EndpointURL, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != "" {
		req.Header.Set(a2a.HeaderWebhookSecret, cfg.Secret)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	res.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !res.Success {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
