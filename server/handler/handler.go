// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"

	"github.com/go-a2a/a2a-taskd"
)

// RequestHandler processes a single JSON-RPC payload independently of the
// transport it arrived on. The HTTP and WebSocket bindings share one
// RequestHandler.
type RequestHandler interface {
	// Handle returns the response to payload, or nil when the payload is a
	// notification.
	Handle(ctx context.Context, payload []byte) *a2a.Response

	// Methods returns the methods the handler dispatches.
	Methods() []string
}

var _ RequestHandler = (*JSONRPCHandler)(nil)
