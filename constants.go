// Copyright 2025 The Go A2A Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"slices"
)

// A2A RPC method names.
const (
	// MethodSendMessage submits a message and creates (or resolves) a task.
	MethodSendMessage = "SendMessage"
	// MethodSendStreamingMessage submits a message and returns a stream subscription.
	MethodSendStreamingMessage = "SendStreamingMessage"
	// MethodGetTask returns a single task.
	MethodGetTask = "GetTask"
	// MethodListTasks lists tasks, optionally filtered by state.
	MethodListTasks = "ListTasks"
	// MethodCancelTask cancels a task.
	MethodCancelTask = "CancelTask"
	// MethodSubscribeToTask creates a subscription cursor over a task's events.
	MethodSubscribeToTask = "SubscribeToTask"
	// MethodCreatePushNotificationConfig registers a webhook.
	MethodCreatePushNotificationConfig = "CreatePushNotificationConfig"
	// MethodGetPushNotificationConfig returns a webhook registration.
	MethodGetPushNotificationConfig = "GetPushNotificationConfig"
	// MethodListPushNotificationConfigs lists webhook registrations.
	MethodListPushNotificationConfigs = "ListPushNotificationConfigs"
	// MethodDeletePushNotificationConfig removes a webhook registration.
	MethodDeletePushNotificationConfig = "DeletePushNotificationConfig"
	// MethodGetExtendedAgentCard returns the extended agent card with its signature.
	MethodGetExtendedAgentCard = "GetExtendedAgentCard"
	// MethodLegacyIntentExecute is the pre-1.0 catch-all intent method.
	MethodLegacyIntentExecute = "intent/execute"
)

// HTTP paths served by the transport binding.
const (
	// AgentCardWellKnownPath is the discovery path of the public agent card.
	AgentCardWellKnownPath = "/.well-known/agent-card.json"

	// RPCPath accepts JSON-RPC payloads over HTTP POST.
	RPCPath = "/a2a/rpc"

	// WebSocketPath accepts JSON-RPC payloads as WebSocket text frames.
	WebSocketPath = "/a2a/ws"

	// StreamPathPrefix prefixes the per-task server-sent events stream.
	StreamPathPrefix = "/a2a/sse/"

	// HealthPath reports liveness.
	HealthPath = "/health"

	// DiagnosticsPath reports task, streaming and push counters.
	DiagnosticsPath = "/diagnostics"
)

// Header names exchanged with peers.
const (
	// HeaderWebhookSecret carries the shared secret of a push notification config.
	HeaderWebhookSecret = "X-A2A-Webhook-Secret"

	// HeaderAgentCardSignature carries the JWS of the discovery card.
	HeaderAgentCardSignature = "X-A2A-AgentCard-Signature"
)

var coreMethods = []string{
	MethodSendMessage,
	MethodSendStreamingMessage,
	MethodGetTask,
	MethodListTasks,
	MethodCancelTask,
	MethodSubscribeToTask,
	MethodCreatePushNotificationConfig,
	MethodGetPushNotificationConfig,
	MethodListPushNotificationConfigs,
	MethodDeletePushNotificationConfig,
	MethodGetExtendedAgentCard,
	MethodLegacyIntentExecute,
}

// CoreMethods returns every method served by this module, sorted.
func CoreMethods() []string {
	methods := slices.Clone(coreMethods)
	slices.Sort(methods)
	return methods
}
