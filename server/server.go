// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the task service over HTTP: JSON-RPC on
// [a2a.RPCPath] and [a2a.WebSocketPath], per-task server-sent events under
// [a2a.StreamPathPrefix], the discovery agent card and the health and
// diagnostics endpoints.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-json-experiment/json"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/auth"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agentcard"
	"github.com/go-a2a/a2a-taskd/server/event"
	"github.com/go-a2a/a2a-taskd/server/handler"
	"github.com/go-a2a/a2a-taskd/server/push"
	"github.com/go-a2a/a2a-taskd/server/task"
)

// DefaultMaxBodyBytes bounds JSON-RPC payloads read from HTTP bodies and
// WebSocket frames.
const DefaultMaxBodyBytes = 1 << 20

// Config holds the collaborators of a [Server].
type Config struct {
	// Handler processes JSON-RPC payloads.
	Handler handler.RequestHandler
	// Tasks is queried for diagnostics.
	Tasks task.Service
	// Events backs the server-sent events endpoint.
	Events event.Log
	// Push is queried for diagnostics.
	Push push.ConfigService
	// Cards serves the discovery agent card.
	Cards agentcard.Catalog
}

// Server implements the HTTP binding of the A2A task service.
type Server struct {
	handler handler.RequestHandler
	tasks   task.Service
	events  event.Log
	push    push.ConfigService
	cards   agentcard.Catalog

	mux            *http.ServeMux
	maxBodyBytes   int64
	originPatterns []string
	authenticator  auth.Authenticator
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a new Server. Every field of cfg is required.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	switch {
	case cfg.Handler == nil:
		return nil, errors.New("request handler is required")
	case cfg.Tasks == nil:
		return nil, errors.New("task service is required")
	case cfg.Events == nil:
		return nil, errors.New("event log is required")
	case cfg.Push == nil:
		return nil, errors.New("push config service is required")
	case cfg.Cards == nil:
		return nil, errors.New("agent card catalog is required")
	}

	s := &Server{
		handler:       cfg.Handler,
		tasks:         cfg.Tasks,
		events:        cfg.Events,
		push:          cfg.Push,
		cards:         cfg.Cards,
		mux:           http.NewServeMux(),
		maxBodyBytes:  DefaultMaxBodyBytes,
		authenticator: auth.Anonymous,
		logger:        slog.Default(),
		tracer:        telemetry.Tracer(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}

	s.registerHandlers()
	return s, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("POST "+a2a.RPCPath, s.authenticated(s.handleRPC))
	s.mux.HandleFunc("GET "+a2a.WebSocketPath, s.authenticated(s.handleWebSocket))
	s.mux.HandleFunc("GET "+a2a.StreamPathPrefix+"{taskId...}", s.authenticated(s.handleStream))
	s.mux.HandleFunc("GET "+a2a.AgentCardWellKnownPath, s.handleAgentCard)
	s.mux.HandleFunc("GET "+a2a.HealthPath, s.handleHealth)
	s.mux.HandleFunc("GET "+a2a.DiagnosticsPath, s.handleDiagnostics)
}

// authenticated resolves the caller through the configured
// [auth.Authenticator] and stores it in the request context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticator.Authenticate(r)
		if err != nil {
			s.logger.InfoContext(r.Context(), "request rejected by authenticator",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(auth.NewContext(r.Context(), user)))
	}
}

// handleRPC answers a JSON-RPC payload. Protocol faults are reported in the
// response body with status 200; notifications get 204.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.writeRPC(w, handler.BuildErrorResponse(nil, a2a.NewValidationError("Failed to read request body", err)))
		return
	}

	resp := s.handler.Handle(r.Context(), payload)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeRPC(w, resp)
}

func (s *Server) writeRPC(w http.ResponseWriter, resp *a2a.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, resp); err != nil {
		s.logger.Error("failed to write JSON-RPC response", slog.String("error", err.Error()))
	}
}

// handleAgentCard serves the discovery card, signed when a signer is configured.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	card, err := s.cards.DiscoveryCard(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build agent card", slog.String("error", err.Error()))
		http.Error(w, "Failed to build agent card", http.StatusInternalServerError)
		return
	}
	sig, err := s.cards.Signature(ctx, card)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sign agent card", slog.String("error", err.Error()))
		http.Error(w, "Failed to sign agent card", http.StatusInternalServerError)
		return
	}

	if sig != "" {
		w.Header().Set(a2a.HeaderAgentCardSignature, sig)
	}
	s.writeJSON(w, card)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": StatusUp})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	d, err := s.Diagnostics(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to collect diagnostics", slog.String("error", err.Error()))
		http.Error(w, "Failed to collect diagnostics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, d)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
