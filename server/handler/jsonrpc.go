// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler binds the JSON-RPC protocol methods to the task, event,
// push and agent card services. It validates envelopes, routes them by
// method and maps faults to JSON-RPC error responses.
package handler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/auth"
	"github.com/go-a2a/a2a-taskd/internal/pool"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agentcard"
	"github.com/go-a2a/a2a-taskd/server/event"
	"github.com/go-a2a/a2a-taskd/server/push"
	"github.com/go-a2a/a2a-taskd/server/task"
)

// JSONRPCHandler translates JSON-RPC payloads into service calls and
// formats their results as JSON-RPC responses.
type JSONRPCHandler struct {
	tasks  task.Service
	events event.Log
	push   push.ConfigService
	cards  agentcard.Catalog

	envelope *EnvelopeProcessor
	router   *MethodRouter

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// Option represents an option for configuring a [JSONRPCHandler].
type Option func(*JSONRPCHandler)

// WithLogger sets the [*slog.Logger] of the handler.
func WithLogger(logger *slog.Logger) Option {
	return func(h *JSONRPCHandler) {
		h.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] of the handler.
func WithTracer(tracer trace.Tracer) Option {
	return func(h *JSONRPCHandler) {
		h.tracer = tracer
	}
}

// WithMetrics sets the metric instruments of the handler.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *JSONRPCHandler) {
		h.metrics = m
	}
}

// WithAllowedMethods replaces the envelope allow-list. An empty list
// accepts any method and leaves unknown methods to the router.
func WithAllowedMethods(methods ...string) Option {
	return func(h *JSONRPCHandler) {
		h.envelope = NewEnvelopeProcessor(methods)
	}
}

// NewJSONRPCHandler creates a JSONRPCHandler serving every method of
// [a2a.CoreMethods].
func NewJSONRPCHandler(tasks task.Service, events event.Log, configs push.ConfigService, cards agentcard.Catalog, opts ...Option) *JSONRPCHandler {
	h := &JSONRPCHandler{
		tasks:    tasks,
		events:   events,
		push:     configs,
		cards:    cards,
		envelope: NewEnvelopeProcessor(a2a.CoreMethods()),
		router:   NewMethodRouter(),
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(),
		metrics:  telemetry.DefaultMetrics(),
	}
	for _, o := range opts {
		o(h)
	}
	h.registerMethods()
	return h
}

func (h *JSONRPCHandler) registerMethods() {
	h.router.RegisterMethod(a2a.MethodSendMessage, h.handleSendMessage)
	h.router.RegisterMethod(a2a.MethodSendStreamingMessage, h.handleSendStreamingMessage)
	h.router.RegisterMethod(a2a.MethodGetTask, h.handleGetTask)
	h.router.RegisterMethod(a2a.MethodListTasks, h.handleListTasks)
	h.router.RegisterMethod(a2a.MethodCancelTask, h.handleCancelTask)
	h.router.RegisterMethod(a2a.MethodSubscribeToTask, h.handleSubscribeToTask)
	h.router.RegisterMethod(a2a.MethodCreatePushNotificationConfig, h.handleCreatePushConfig)
	h.router.RegisterMethod(a2a.MethodGetPushNotificationConfig, h.handleGetPushConfig)
	h.router.RegisterMethod(a2a.MethodListPushNotificationConfigs, h.handleListPushConfigs)
	h.router.RegisterMethod(a2a.MethodDeletePushNotificationConfig, h.handleDeletePushConfig)
	h.router.RegisterMethod(a2a.MethodGetExtendedAgentCard, h.handleGetExtendedAgentCard)
	h.router.RegisterMethod(a2a.MethodLegacyIntentExecute, h.handleIntentExecute)
}

// Methods returns the methods the handler dispatches, sorted.
func (h *JSONRPCHandler) Methods() []string {
	return h.router.Methods()
}

// Handle processes one JSON-RPC payload. It returns nil for notifications,
// including failed ones; every other payload yields a response.
func (h *JSONRPCHandler) Handle(ctx context.Context, payload []byte) *a2a.Response {
	start := time.Now()
	ctx, span := h.tracer.Start(ctx, "a2a.jsonrpc.Handle", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	env, err := h.envelope.Parse(payload)
	var resp *a2a.Response
	if err == nil {
		span.SetAttributes(attribute.String("a2a.method", env.Method), attribute.String("a2a.envelope", string(env.Type)))
		if user := auth.FromContext(ctx); user.IsAuthenticated() {
			span.SetAttributes(attribute.String("a2a.user", user.UserName()))
		}
		resp, err = h.router.Route(ctx, env)
	}

	code := 0
	if err != nil {
		code = CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.DebugContext(ctx, "json-rpc call failed",
			slog.String("method", env.Method),
			slog.Int("code", code),
			slog.String("error", err.Error()),
		)
		if env.Type == EnvelopeNotification {
			resp = nil
		} else {
			resp = BuildErrorResponse(env, err)
		}
	}

	attrs := metric.WithAttributes(attribute.String("a2a.method", env.Method), attribute.Int("a2a.code", code))
	h.metrics.RPCCalls.Add(ctx, 1, attrs)
	h.metrics.RPCLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	return resp
}

// HandleBytes is [JSONRPCHandler.Handle] with an encoded response. The
// result is empty for notifications.
func (h *JSONRPCHandler) HandleBytes(ctx context.Context, payload []byte) ([]byte, error) {
	resp := h.Handle(ctx, payload)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

// decodeParams converts params into a T. With required set, absent or null
// params fail with "<method> requires params object"; otherwise they yield
// the zero T.
func decodeParams[T any](method string, params jsontext.Value, required bool) (*T, error) {
	var v T
	if params == nil {
		if required {
			return nil, a2a.NewInvalidParamsError("%s requires params object", method)
		}
		return &v, nil
	}
	if params.Kind() != '{' {
		return nil, a2a.NewInvalidParamsError("%s params must be an object", method)
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return nil, a2a.NewInvalidParamsError("Invalid params for %s: %v", method, err)
	}
	return &v, nil
}

func (h *JSONRPCHandler) handleSendMessage(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.SendMessageRequest](a2a.MethodSendMessage, params, true)
	if err != nil {
		return nil, err
	}
	if req.Message == nil {
		return nil, a2a.NewInvalidParamsError("SendMessage requires message")
	}

	t, err := h.tasks.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	return &a2a.SendMessageResponse{Task: t}, nil
}

// streamingSteps are the transitions applied to a task submitted through
// SendStreamingMessage.
var streamingSteps = []struct {
	state  a2a.TaskState
	reason string
}{
	{a2a.TaskStateWaiting, "Streaming updates started"},
	{a2a.TaskStateRunning, "Streaming updates in progress"},
	{a2a.TaskStateCompleted, "Streaming updates completed"},
}

func (h *JSONRPCHandler) handleSendStreamingMessage(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.SendStreamingMessageRequest](a2a.MethodSendStreamingMessage, params, true)
	if err != nil {
		return nil, err
	}
	if req.Message == nil {
		return nil, a2a.NewInvalidParamsError("SendStreamingMessage requires message")
	}

	t, err := h.tasks.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	// A duplicate submission resolves to a task that may already be finished.
	if !t.Status.State.IsTerminal() {
		for _, step := range streamingSteps {
			if _, err := h.tasks.TransitionTask(ctx, t.ID, step.state, step.reason); err != nil {
				return nil, err
			}
		}
	}
	if t, err = h.tasks.GetTask(ctx, t.ID); err != nil {
		return nil, err
	}

	sub, err := h.events.CreateSubscription(ctx, t.ID, 0)
	if err != nil {
		return nil, err
	}
	return &a2a.SendStreamingMessageResponse{
		Task:           t,
		SubscriptionID: sub.SubscriptionID,
		StreamURL:      StreamURL(t.ID, sub.SubscriptionID, 0, nil),
	}, nil
}

func (h *JSONRPCHandler) handleGetTask(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.GetTaskRequest](a2a.MethodGetTask, params, true)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, a2a.NewInvalidParamsError("GetTask requires taskId")
	}

	t, err := h.tasks.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	return &a2a.GetTaskResponse{Task: t}, nil
}

func (h *JSONRPCHandler) handleListTasks(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.ListTasksRequest](a2a.MethodListTasks, params, false)
	if err != nil {
		return nil, err
	}
	if req.Limit != nil && *req.Limit <= 0 {
		return nil, a2a.NewInvalidParamsError("ListTasks limit must be greater than zero")
	}

	tasks, err := h.tasks.ListTasks(ctx, req)
	if err != nil {
		return nil, err
	}
	return &a2a.ListTasksResponse{Tasks: tasks}, nil
}

func (h *JSONRPCHandler) handleCancelTask(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.CancelTaskRequest](a2a.MethodCancelTask, params, true)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, a2a.NewInvalidParamsError("CancelTask requires taskId")
	}

	t, err := h.tasks.CancelTask(ctx, req)
	if err != nil {
		return nil, err
	}
	return &a2a.CancelTaskResponse{Task: t, Canceled: true}, nil
}

func (h *JSONRPCHandler) handleSubscribeToTask(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.SubscribeToTaskRequest](a2a.MethodSubscribeToTask, params, true)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, a2a.NewInvalidParamsError("SubscribeToTask requires taskId")
	}
	if req.Limit != nil && *req.Limit <= 0 {
		return nil, a2a.NewInvalidParamsError("SubscribeToTask limit must be greater than zero")
	}
	if _, err := h.tasks.GetTask(ctx, req.TaskID); err != nil {
		return nil, err
	}

	var after int64
	if req.AfterSequence != nil {
		after = max(0, *req.AfterSequence)
	}
	sub, err := h.events.CreateSubscription(ctx, req.TaskID, after)
	if err != nil {
		return nil, err
	}
	terminal, err := h.events.IsTaskTerminal(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	return &a2a.SubscribeToTaskResponse{
		SubscriptionID: sub.SubscriptionID,
		TaskID:         req.TaskID,
		AfterSequence:  after,
		StreamURL:      StreamURL(req.TaskID, sub.SubscriptionID, after, req.Limit),
		Terminal:       terminal,
	}, nil
}

func (h *JSONRPCHandler) handleCreatePushConfig(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.CreatePushNotificationConfigRequest](a2a.MethodCreatePushNotificationConfig, params, true)
	if err != nil {
		return nil, err
	}
	cfg, err := h.push.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return &a2a.CreatePushNotificationConfigResponse{Config: cfg}, nil
}

func (h *JSONRPCHandler) handleGetPushConfig(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.GetPushNotificationConfigRequest](a2a.MethodGetPushNotificationConfig, params, true)
	if err != nil {
		return nil, err
	}
	cfg, err := h.push.Get(ctx, req.ConfigID)
	if err != nil {
		return nil, err
	}
	return &a2a.GetPushNotificationConfigResponse{Config: cfg}, nil
}

func (h *JSONRPCHandler) handleListPushConfigs(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.ListPushNotificationConfigsRequest](a2a.MethodListPushNotificationConfigs, params, false)
	if err != nil {
		return nil, err
	}
	cfgs, err := h.push.List(ctx, req.TaskID, req.Limit)
	if err != nil {
		return nil, err
	}
	return &a2a.ListPushNotificationConfigsResponse{Configs: cfgs}, nil
}

func (h *JSONRPCHandler) handleDeletePushConfig(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.DeletePushNotificationConfigRequest](a2a.MethodDeletePushNotificationConfig, params, true)
	if err != nil {
		return nil, err
	}
	deleted, err := h.push.Delete(ctx, req.ConfigID)
	if err != nil {
		return nil, err
	}
	return &a2a.DeletePushNotificationConfigResponse{ConfigID: req.ConfigID, Deleted: deleted}, nil
}

func (h *JSONRPCHandler) handleGetExtendedAgentCard(ctx context.Context, params jsontext.Value) (any, error) {
	req, err := decodeParams[a2a.GetExtendedAgentCardRequest](a2a.MethodGetExtendedAgentCard, params, false)
	if err != nil {
		return nil, err
	}
	card, err := h.cards.ExtendedCard(ctx)
	if err != nil {
		return nil, err
	}

	resp := &a2a.GetExtendedAgentCardResponse{AgentCard: card}
	if req.IncludeSignature == nil || *req.IncludeSignature {
		if resp.Signature, err = h.cards.Signature(ctx, card); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (h *JSONRPCHandler) handleIntentExecute(context.Context, jsontext.Value) (any, error) {
	return &a2a.IntentExecuteResponse{Handled: true, Method: a2a.MethodLegacyIntentExecute}, nil
}

// StreamURL returns the server-sent events URL of a subscription.
func StreamURL(taskID, subscriptionID string, afterSequence int64, limit *int) string {
	sb := pool.String.Get()
	defer pool.String.Put(sb)

	sb.WriteString(a2a.StreamPathPrefix)
	sb.WriteString(taskID)
	sb.WriteString("?subscriptionId=")
	sb.WriteString(subscriptionID)
	sb.WriteString("&afterSequence=")
	sb.WriteString(strconv.FormatInt(afterSequence, 10))
	if limit != nil {
		sb.WriteString("&limit=")
		sb.WriteString(strconv.Itoa(*limit))
	}
	return sb.String()
}
