// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agentcard"
	"github.com/go-a2a/a2a-taskd/server/event"
	"github.com/go-a2a/a2a-taskd/server/push"
	"github.com/go-a2a/a2a-taskd/server/task"
)

type testEnv struct {
	handler *JSONRPCHandler
	log     *event.InMemoryLog
	tasks   *task.InMemoryService
}

func newTestEnv(t *testing.T, opts ...agentcard.Option) *testEnv {
	t.Helper()

	log := event.NewInMemoryLog(event.WithMetrics(telemetry.NoopMetrics()))
	tasks := task.NewInMemoryService(task.WithPublisher(log), task.WithMetrics(telemetry.NoopMetrics()))
	configs := push.NewInMemoryConfigService(push.NotifierFunc(func(_ context.Context, cfg *a2a.PushNotificationConfig, _ a2a.TaskEvent, attempt int) a2a.PushDeliveryAttempt {
		return a2a.PushDeliveryAttempt{ConfigID: cfg.ConfigID, AttemptNumber: attempt, StatusCode: 200, Success: true}
	}))
	cards := agentcard.NewCatalog(agentcard.Identity{
		AgentID:     "agent-1",
		Name:        "Test Agent",
		EndpointURL: "http://localhost:8080/a2a/rpc",
	}, opts...)

	return &testEnv{
		handler: NewJSONRPCHandler(tasks, log, configs, cards, WithMetrics(telemetry.NoopMetrics())),
		log:     log,
		tasks:   tasks,
	}
}

func rpcPayload(t *testing.T, method string, params any) []byte {
	t.Helper()

	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// call invokes method and decodes a successful result into T.
func call[T any](t *testing.T, e *testEnv, method string, params any) T {
	t.Helper()

	resp := e.handler.Handle(t.Context(), rpcPayload(t, method, params))
	if resp == nil {
		t.Fatalf("%s returned no response", method)
	}
	if resp.Error != nil {
		t.Fatalf("%s failed: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	var out T
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("decode %s result: %v", method, err)
	}
	return out
}

// callErr invokes method and returns the error object of the response.
func callErr(t *testing.T, e *testEnv, method string, params any) *a2a.JSONRPCError {
	t.Helper()

	resp := e.handler.Handle(t.Context(), rpcPayload(t, method, params))
	if resp == nil || resp.Error == nil {
		t.Fatalf("%s(%v) = %+v, want an error response", method, params, resp)
	}
	return resp.Error
}

var testMessage = map[string]any{
	"role":  "user",
	"parts": []any{map[string]any{"type": "text", "text": "hello"}},
}

func TestSendMessageIsIdempotent(t *testing.T) {
	e := newTestEnv(t)

	params := map[string]any{"message": testMessage, "idempotencyKey": "k-1"}
	first := call[a2a.SendMessageResponse](t, e, a2a.MethodSendMessage, params)
	second := call[a2a.SendMessageResponse](t, e, a2a.MethodSendMessage, params)

	if first.Task.ID == "" || first.Task.ID != second.Task.ID {
		t.Fatalf("task ids = %q, %q, want one shared id", first.Task.ID, second.Task.ID)
	}
	if first.Task.Status.State != a2a.TaskStateRunning {
		t.Errorf("state = %s, want RUNNING", first.Task.Status.State)
	}

	listed := call[a2a.ListTasksResponse](t, e, a2a.MethodListTasks, nil)
	if len(listed.Tasks) != 1 || listed.NextCursor != nil {
		t.Errorf("ListTasks() = %+v, want one task and a null cursor", listed)
	}
}

func TestSendStreamingMessage(t *testing.T) {
	e := newTestEnv(t)

	got := call[a2a.SendStreamingMessageResponse](t, e, a2a.MethodSendStreamingMessage, map[string]any{"message": testMessage})
	if got.Task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want COMPLETED", got.Task.Status.State)
	}
	if want := "/a2a/sse/" + got.Task.ID + "?subscriptionId=" + got.SubscriptionID + "&afterSequence=0"; got.StreamURL != want {
		t.Errorf("StreamURL = %q, want %q", got.StreamURL, want)
	}

	events, err := e.log.ReadEvents(t.Context(), got.Task.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	var states []a2a.TaskState
	for _, ev := range events {
		states = append(states, ev.State)
	}
	want := []a2a.TaskState{
		a2a.TaskStateCreated,
		a2a.TaskStateRunning,
		a2a.TaskStateWaiting,
		a2a.TaskStateRunning,
		a2a.TaskStateCompleted,
	}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("event states mismatch (-want +got):\n%s", diff)
	}

	sub, ok := e.log.GetSubscription(got.SubscriptionID)
	if !ok || !sub.Terminal {
		t.Errorf("subscription = %+v, want terminal", sub)
	}

	// A replayed submission of a finished task is not driven again.
	params := map[string]any{"message": testMessage, "idempotencyKey": "stream-1"}
	call[a2a.SendStreamingMessageResponse](t, e, a2a.MethodSendStreamingMessage, params)
	replayed := call[a2a.SendStreamingMessageResponse](t, e, a2a.MethodSendStreamingMessage, params)
	if replayed.Task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("replayed state = %s, want COMPLETED", replayed.Task.Status.State)
	}
}

func TestCancelTask(t *testing.T) {
	e := newTestEnv(t)

	sent := call[a2a.SendMessageResponse](t, e, a2a.MethodSendMessage, map[string]any{"message": testMessage})
	got := call[a2a.CancelTaskResponse](t, e, a2a.MethodCancelTask, map[string]any{"taskId": sent.Task.ID, "reason": "user abort"})
	if !got.Canceled || got.Task.Status.State != a2a.TaskStateCanceled || got.Task.Status.Message != "user abort" {
		t.Errorf("CancelTask() = %+v", got)
	}

	streamed := call[a2a.SendStreamingMessageResponse](t, e, a2a.MethodSendStreamingMessage, map[string]any{"message": testMessage})
	rpcErr := callErr(t, e, a2a.MethodCancelTask, map[string]any{"taskId": streamed.Task.ID})
	want := &a2a.JSONRPCError{Code: a2a.CodeInvalidParams, Message: "Illegal task transition: COMPLETED -> CANCELED"}
	if diff := cmp.Diff(want, rpcErr); diff != "" {
		t.Errorf("CancelTask(completed) mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeToTask(t *testing.T) {
	e := newTestEnv(t)

	sent := call[a2a.SendMessageResponse](t, e, a2a.MethodSendMessage, map[string]any{"message": testMessage})
	got := call[a2a.SubscribeToTaskResponse](t, e, a2a.MethodSubscribeToTask, map[string]any{
		"taskId":        sent.Task.ID,
		"afterSequence": -3,
		"limit":         10,
	})

	want := a2a.SubscribeToTaskResponse{
		SubscriptionID: got.SubscriptionID,
		TaskID:         sent.Task.ID,
		AfterSequence:  0,
		StreamURL:      "/a2a/sse/" + sent.Task.ID + "?subscriptionId=" + got.SubscriptionID + "&afterSequence=0&limit=10",
		Terminal:       false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SubscribeToTask() mismatch (-want +got):\n%s", diff)
	}
	if e.log.ActiveSubscriptionCount() != 1 {
		t.Errorf("ActiveSubscriptionCount() = %d, want 1", e.log.ActiveSubscriptionCount())
	}
}

func TestPushConfigMethods(t *testing.T) {
	e := newTestEnv(t)

	created := call[a2a.CreatePushNotificationConfigResponse](t, e, a2a.MethodCreatePushNotificationConfig, map[string]any{
		"taskId":      "t1",
		"endpointUrl": "http://hooks.example.test/a2a",
	})
	if created.Config.MaxRetries != push.DefaultMaxRetries || !created.Config.Enabled {
		t.Errorf("created config = %+v", created.Config)
	}

	got := call[a2a.GetPushNotificationConfigResponse](t, e, a2a.MethodGetPushNotificationConfig, map[string]any{"configId": created.Config.ConfigID})
	if diff := cmp.Diff(created.Config, got.Config); diff != "" {
		t.Errorf("GetPushNotificationConfig() mismatch (-want +got):\n%s", diff)
	}

	listed := call[a2a.ListPushNotificationConfigsResponse](t, e, a2a.MethodListPushNotificationConfigs, map[string]any{"taskId": "other"})
	if len(listed.Configs) != 0 {
		t.Errorf("ListPushNotificationConfigs(other) = %d configs, want 0", len(listed.Configs))
	}
	listed = call[a2a.ListPushNotificationConfigsResponse](t, e, a2a.MethodListPushNotificationConfigs, nil)
	if len(listed.Configs) != 1 {
		t.Errorf("ListPushNotificationConfigs() = %d configs, want 1", len(listed.Configs))
	}

	for _, want := range []bool{true, false} {
		deleted := call[a2a.DeletePushNotificationConfigResponse](t, e, a2a.MethodDeletePushNotificationConfig, map[string]any{"configId": created.Config.ConfigID})
		if deleted.Deleted != want || deleted.ConfigID != created.Config.ConfigID {
			t.Errorf("DeletePushNotificationConfig() = %+v, want deleted=%t", deleted, want)
		}
	}
}

func TestGetExtendedAgentCard(t *testing.T) {
	signer, err := agentcard.NewJWSSigner([]byte("test-signing-key"))
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEnv(t, agentcard.WithSigner(signer), agentcard.WithVerifier(signer))

	got := call[a2a.GetExtendedAgentCardResponse](t, e, a2a.MethodGetExtendedAgentCard, nil)
	if got.Signature == "" {
		t.Error("Signature is empty, want a JWS by default")
	}
	if got.AgentCard == nil || got.AgentCard.Metadata["extended"] != true {
		t.Errorf("AgentCard = %+v, want extended metadata", got.AgentCard)
	}

	unsigned := call[a2a.GetExtendedAgentCardResponse](t, e, a2a.MethodGetExtendedAgentCard, map[string]any{"includeSignature": false})
	if unsigned.Signature != "" {
		t.Errorf("Signature = %q, want none when includeSignature is false", unsigned.Signature)
	}
}

func TestIntentExecute(t *testing.T) {
	e := newTestEnv(t)

	got := call[a2a.IntentExecuteResponse](t, e, a2a.MethodLegacyIntentExecute, map[string]any{"intent": "anything"})
	want := a2a.IntentExecuteResponse{Handled: true, Method: a2a.MethodLegacyIntentExecute}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("intent/execute mismatch (-want +got):\n%s", diff)
	}
}

func TestParamErrors(t *testing.T) {
	tests := []struct {
		method string
		params any
		want   string
	}{
		{a2a.MethodSendMessage, nil, "SendMessage requires params object"},
		{a2a.MethodSendMessage, map[string]any{}, "SendMessage requires message"},
		{a2a.MethodSendStreamingMessage, map[string]any{"idempotencyKey": "k"}, "SendStreamingMessage requires message"},
		{a2a.MethodGetTask, map[string]any{}, "GetTask requires taskId"},
		{a2a.MethodGetTask, []any{"t1"}, "GetTask params must be an object"},
		{a2a.MethodGetTask, map[string]any{"taskId": "missing"}, "Task not found: missing"},
		{a2a.MethodListTasks, map[string]any{"limit": 0}, "ListTasks limit must be greater than zero"},
		{a2a.MethodCancelTask, map[string]any{"taskId": " "}, "CancelTask requires taskId"},
		{a2a.MethodSubscribeToTask, map[string]any{}, "SubscribeToTask requires taskId"},
		{a2a.MethodSubscribeToTask, map[string]any{"taskId": "t1", "limit": -1}, "SubscribeToTask limit must be greater than zero"},
		{a2a.MethodSubscribeToTask, map[string]any{"taskId": "missing"}, "Task not found: missing"},
		{a2a.MethodCreatePushNotificationConfig, map[string]any{}, "CreatePushNotificationConfig requires endpointUrl"},
		{a2a.MethodGetPushNotificationConfig, map[string]any{"configId": "nope"}, "Push config not found: nope"},
		{a2a.MethodListPushNotificationConfigs, map[string]any{"limit": 0}, "ListPushNotificationConfigs limit must be greater than zero"},
		{a2a.MethodDeletePushNotificationConfig, map[string]any{}, "DeletePushNotificationConfig requires configId"},
	}

	e := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := callErr(t, e, tt.method, tt.params)
			want := &a2a.JSONRPCError{Code: a2a.CodeInvalidParams, Message: tt.want}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.method, diff)
			}
		})
	}
}

func TestHandleProtocolErrors(t *testing.T) {
	e := newTestEnv(t)
	ctx := t.Context()

	resp := e.handler.Handle(ctx, []byte(`{"jsonrpc":"1.0","id":"abc","method":"GetTask"}`))
	if resp.Error == nil || resp.Error.Code != a2a.CodeInvalidRequest {
		t.Fatalf("Handle(bad version) = %+v, want -32600", resp)
	}
	if !resp.ID.Equal(a2a.NewStringID("abc")) {
		t.Errorf("ID = %s, want \"abc\"", resp.ID.Raw())
	}

	resp = e.handler.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":9,"method":"tasks/get"}`))
	if resp.Error == nil || resp.Error.Code != a2a.CodeMethodNotFound || !resp.ID.Equal(a2a.NewNumberID(9)) {
		t.Errorf("Handle(unknown method) = %+v, want -32601 with id 9", resp)
	}

	resp = e.handler.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":{},"method":"GetTask"}`))
	if resp.Error == nil || !resp.ID.IsNull() {
		t.Errorf("Handle(object id) = %+v, want an error with a null id", resp)
	}

	b, err := e.handler.HandleBytes(ctx, []byte(`{"jsonrpc":"2.0","id":false,"method":"GetTask","params":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32602,"message":"GetTask requires taskId"},"id":false}`
	if string(b) != want {
		t.Errorf("HandleBytes() = %s, want %s", b, want)
	}
}

func TestNotificationsHaveNoBody(t *testing.T) {
	e := newTestEnv(t)
	ctx := t.Context()

	payloads := []string{
		`{"jsonrpc":"2.0","method":"SendMessage","params":{"message":{"role":"user"}}}`,
		`{"jsonrpc":"2.0","method":"GetTask","params":{}}`,
		`{"jsonrpc":"2.0","method":"tasks/unknown"}`,
	}
	for _, p := range payloads {
		if resp := e.handler.Handle(ctx, []byte(p)); resp != nil {
			t.Errorf("Handle(%s) = %+v, want no response", p, resp)
		}
		b, err := e.handler.HandleBytes(ctx, []byte(p))
		if err != nil || len(b) != 0 {
			t.Errorf("HandleBytes(%s) = %q, %v, want empty", p, b, err)
		}
	}

	// The SendMessage notification ran once per Handle and HandleBytes call.
	tasks, err := e.tasks.ListTasks(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Errorf("ListTasks() = %d tasks, want 2", len(tasks))
	}
}

func TestMethods(t *testing.T) {
	e := newTestEnv(t)
	if diff := cmp.Diff(a2a.CoreMethods(), e.handler.Methods()); diff != "" {
		t.Errorf("Methods() mismatch (-want +got):\n%s", diff)
	}
}
