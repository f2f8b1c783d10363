// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"maps"
	"slices"
	"time"
)

// EventTypeTaskStatus is the event type of every status change event.
const EventTypeTaskStatus = "task.status"

// Part is a single piece of content carried by a [Message] or an [Artifact].
type Part struct {
	PartID   string         `json:"partId,omitempty"`
	Type     string         `json:"type,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Text     string         `json:"text,omitempty"`
	Data     any            `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is a unit of communication between a client and an agent.
type Message struct {
	MessageID string         `json:"messageId,omitempty"`
	Role      string         `json:"role,omitempty"`
	InReplyTo string         `json:"inReplyTo,omitempty"`
	Parts     []Part         `json:"parts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
}

// Clone returns a copy of m whose slices and maps are not shared with m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Parts = slices.Clone(m.Parts)
	c.Metadata = maps.Clone(m.Metadata)
	return &c
}

// Artifact is an output produced while working on a task.
type Artifact struct {
	ArtifactID  string         `json:"artifactId,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitzero"`
}

// TaskStatus is an immutable snapshot of a task's state. Every accepted
// transition appends a new TaskStatus to the task history.
type TaskStatus struct {
	State     TaskState      `json:"state,omitempty"`
	Message   string         `json:"message,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
	Details   map[string]any `json:"details,omitempty"`
}

// Task is the unit of agent work tracked by the server.
type Task struct {
	ID             string         `json:"taskId"`
	ConversationID string         `json:"conversationId,omitempty"`
	Status         TaskStatus     `json:"status"`
	LatestMessage  *Message       `json:"latestMessage,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Artifacts      []Artifact     `json:"artifacts,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitzero"`
	UpdatedAt      time.Time      `json:"updatedAt,omitzero"`
}

// Clone returns a copy of t that can be handed out without exposing the
// internal slices and maps of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Status.Details = maps.Clone(t.Status.Details)
	c.LatestMessage = t.LatestMessage.Clone()
	c.Messages = slices.Clone(t.Messages)
	c.Artifacts = slices.Clone(t.Artifacts)
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

// TaskEvent is an entry of a task's append-only event log. Its identity is
// the pair (TaskID, Sequence).
type TaskEvent struct {
	Sequence  int64          `json:"sequence"`
	TaskID    string         `json:"taskId"`
	EventType string         `json:"eventType"`
	State     TaskState      `json:"state"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	Terminal  bool           `json:"terminal"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// TaskSubscription is a cursor into a task's event log.
type TaskSubscription struct {
	SubscriptionID        string    `json:"subscriptionId"`
	TaskID                string    `json:"taskId"`
	AfterSequence         int64     `json:"afterSequence"`
	LastDeliveredSequence int64     `json:"lastDeliveredSequence"`
	Terminal              bool      `json:"terminal"`
	CreatedAt             time.Time `json:"createdAt,omitzero"`
	UpdatedAt             time.Time `json:"updatedAt,omitzero"`
}

// PushNotificationConfig registers a webhook receiving task events. An empty
// TaskID matches the events of every task.
type PushNotificationConfig struct {
	ConfigID       string            `json:"configId"`
	TaskID         string            `json:"taskId,omitempty"`
	EndpointURL    string            `json:"endpointUrl"`
	Secret         string            `json:"secret,omitempty"`
	Enabled        bool              `json:"enabled"`
	MaxRetries     int               `json:"maxRetries"`
	RetryBackoffMs int64             `json:"retryBackoffMs"`
	Headers        map[string]string `json:"headers,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt,omitzero"`
	UpdatedAt      time.Time         `json:"updatedAt,omitzero"`
}

// RetryBackoff returns the configured wait between delivery attempts.
func (c *PushNotificationConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// Matches reports whether events of taskID should be delivered through c.
func (c *PushNotificationConfig) Matches(taskID string) bool {
	return c.Enabled && (c.TaskID == "" || c.TaskID == taskID)
}

// Clone returns a copy of c with its own header and metadata maps.
func (c *PushNotificationConfig) Clone() *PushNotificationConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Headers = maps.Clone(c.Headers)
	cp.Metadata = maps.Clone(c.Metadata)
	return &cp
}

// PushDeliveryAttempt is the result of a single webhook call.
type PushDeliveryAttempt struct {
	ConfigID      string `json:"configId"`
	EndpointURL   string `json:"endpointUrl"`
	AttemptNumber int    `json:"attemptNumber"`
	StatusCode    int    `json:"statusCode"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// PushDeliveryStats aggregates delivery counters across all configs.
type PushDeliveryStats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}
