// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-taskd/server/handler"
)

// handleWebSocket serves JSON-RPC over a WebSocket. Every frame carries one
// payload; responses are written in request order and notifications get none.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket handshake failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(s.maxBodyBytes)
	defer conn.CloseNow()

	ctx := r.Context()
	s.logger.DebugContext(ctx, "websocket client connected", slog.String("remote_addr", r.RemoteAddr))

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.logger.DebugContext(ctx, "websocket client disconnected")
			default:
				if !errors.Is(err, ctx.Err()) {
					s.logger.WarnContext(ctx, "websocket read failed", slog.String("error", err.Error()))
				}
			}
			return
		}

		resp := s.handler.Handle(ctx, payload)
		if resp == nil {
			continue
		}
		out, err := json.Marshal(resp)
		if err != nil {
			out, _ = json.Marshal(handler.BuildErrorResponse(nil, err))
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			s.logger.WarnContext(ctx, "websocket write failed", slog.String("error", err.Error()))
			return
		}
	}
}
