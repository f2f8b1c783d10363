// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd/auth"
)

// Option represents an option for configuring the [Server].
type Option func(*Server)

// WithMaxBodyBytes sets the largest accepted JSON-RPC payload.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithOriginPatterns sets the host patterns accepted for cross-origin
// WebSocket handshakes. Same-origin handshakes are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = patterns
	}
}

// WithLogger sets the [*slog.Logger] for the [Server].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] for the [Server].
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithAuthenticator sets the hook resolving the caller of JSON-RPC, WebSocket
// and stream requests. A nil authenticator restores [auth.Anonymous].
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Server) {
		if a == nil {
			a = auth.Anonymous
		}
		s.authenticator = a
	}
}
