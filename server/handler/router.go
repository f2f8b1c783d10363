// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"maps"
	"slices"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2a-taskd"
)

// MethodFunc handles the params of one method and returns its result.
type MethodFunc func(ctx context.Context, params jsontext.Value) (any, error)

// MethodRouter dispatches requests and notifications to registered methods.
type MethodRouter struct {
	methods map[string]MethodFunc
}

// NewMethodRouter creates a new MethodRouter.
func NewMethodRouter() *MethodRouter {
	return &MethodRouter{
		methods: make(map[string]MethodFunc),
	}
}

// RegisterMethod registers fn for method, replacing any previous handler.
func (r *MethodRouter) RegisterMethod(method string, fn MethodFunc) {
	r.methods[method] = fn
}

// Methods returns the registered method names, sorted.
func (r *MethodRouter) Methods() []string {
	return slices.Sorted(maps.Keys(r.methods))
}

// Route invokes the handler of env.Method. Notifications run for their side
// effects and yield a nil response.
func (r *MethodRouter) Route(ctx context.Context, env *Envelope) (*a2a.Response, error) {
	if env.Type != EnvelopeRequest && env.Type != EnvelopeNotification {
		return nil, a2a.NewValidationError("Only request/notification envelopes can be dispatched", nil)
	}

	fn, ok := r.methods[env.Method]
	if !ok {
		return nil, a2a.NewMethodNotFoundError(env.Method)
	}

	result, err := fn(ctx, env.Params)
	if err != nil {
		return nil, err
	}
	if env.Type == EnvelopeNotification {
		return nil, nil
	}

	resp, err := a2a.NewResultResponse(env.ID, result)
	if err != nil {
		return nil, a2a.NewInternalError("encode result", err)
	}
	return resp, nil
}
