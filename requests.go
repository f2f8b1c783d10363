// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

// SendMessageRequest is the params object of [MethodSendMessage].
type SendMessageRequest struct {
	Message        *Message       `json:"message,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SendMessageResponse is the result of [MethodSendMessage].
type SendMessageResponse struct {
	Task *Task `json:"task"`
}

// SendStreamingMessageRequest is the params object of [MethodSendStreamingMessage].
type SendStreamingMessageRequest = SendMessageRequest

// SendStreamingMessageResponse is the result of [MethodSendStreamingMessage].
type SendStreamingMessageResponse struct {
	Task           *Task  `json:"task"`
	SubscriptionID string `json:"subscriptionId"`
	StreamURL      string `json:"streamUrl"`
}

// GetTaskRequest is the params object of [MethodGetTask].
type GetTaskRequest struct {
	TaskID string `json:"taskId"`
}

// GetTaskResponse is the result of [MethodGetTask].
type GetTaskResponse struct {
	Task *Task `json:"task"`
}

// ListTasksRequest is the params object of [MethodListTasks].
type ListTasksRequest struct {
	Limit  *int   `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
	State  string `json:"state,omitempty"`
}

// ListTasksResponse is the result of [MethodListTasks]. NextCursor is always
// null; the listing is not paginated.
type ListTasksResponse struct {
	Tasks      []*Task `json:"tasks"`
	NextCursor *string `json:"nextCursor"`
}

// CancelTaskRequest is the params object of [MethodCancelTask].
type CancelTaskRequest struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason,omitempty"`
}

// CancelTaskResponse is the result of [MethodCancelTask].
type CancelTaskResponse struct {
	Task     *Task `json:"task"`
	Canceled bool  `json:"canceled"`
}

// SubscribeToTaskRequest is the params object of [MethodSubscribeToTask].
type SubscribeToTaskRequest struct {
	TaskID        string `json:"taskId"`
	AfterSequence *int64 `json:"afterSequence,omitempty"`
	Limit         *int   `json:"limit,omitempty"`
}

// SubscribeToTaskResponse is the result of [MethodSubscribeToTask].
type SubscribeToTaskResponse struct {
	SubscriptionID string `json:"subscriptionId"`
	TaskID         string `json:"taskId"`
	AfterSequence  int64  `json:"afterSequence"`
	StreamURL      string `json:"streamUrl"`
	Terminal       bool   `json:"terminal"`
}

// CreatePushNotificationConfigRequest is the params object of
// [MethodCreatePushNotificationConfig]. Nil pointers select the defaults.
type CreatePushNotificationConfigRequest struct {
	TaskID         string            `json:"taskId,omitempty"`
	EndpointURL    string            `json:"endpointUrl"`
	Secret         string            `json:"secret,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
	MaxRetries     *int              `json:"maxRetries,omitempty"`
	RetryBackoffMs *int64            `json:"retryBackoffMs,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// CreatePushNotificationConfigResponse is the result of [MethodCreatePushNotificationConfig].
type CreatePushNotificationConfigResponse struct {
	Config *PushNotificationConfig `json:"config"`
}

// GetPushNotificationConfigRequest is the params object of [MethodGetPushNotificationConfig].
type GetPushNotificationConfigRequest struct {
	ConfigID string `json:"configId"`
}

// GetPushNotificationConfigResponse is the result of [MethodGetPushNotificationConfig].
type GetPushNotificationConfigResponse struct {
	Config *PushNotificationConfig `json:"config"`
}

// ListPushNotificationConfigsRequest is the params object of [MethodListPushNotificationConfigs].
type ListPushNotificationConfigsRequest struct {
	TaskID string `json:"taskId,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

// ListPushNotificationConfigsResponse is the result of [MethodListPushNotificationConfigs].
type ListPushNotificationConfigsResponse struct {
	Configs []*PushNotificationConfig `json:"configs"`
}

// DeletePushNotificationConfigRequest is the params object of [MethodDeletePushNotificationConfig].
type DeletePushNotificationConfigRequest struct {
	ConfigID string `json:"configId"`
}

// DeletePushNotificationConfigResponse is the result of [MethodDeletePushNotificationConfig].
type DeletePushNotificationConfigResponse struct {
	ConfigID string `json:"configId"`
	Deleted  bool   `json:"deleted"`
}

// GetExtendedAgentCardRequest is the params object of [MethodGetExtendedAgentCard].
type GetExtendedAgentCardRequest struct {
	IncludeSignature *bool `json:"includeSignature,omitempty"`
}

// GetExtendedAgentCardResponse is the result of [MethodGetExtendedAgentCard].
type GetExtendedAgentCardResponse struct {
	AgentCard *AgentCard `json:"agentCard"`
	Signature string     `json:"signature,omitempty"`
}

// IntentExecuteResponse is the result of [MethodLegacyIntentExecute].
type IntentExecuteResponse struct {
	Handled bool   `json:"handled"`
	Method  string `json:"method"`
}
