// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"bytes"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2a-taskd"
)

// EnvelopeType classifies a JSON-RPC payload.
type EnvelopeType string

// Envelope types.
const (
	EnvelopeRequest      EnvelopeType = "request"
	EnvelopeNotification EnvelopeType = "notification"
	EnvelopeResponse     EnvelopeType = "response"
	EnvelopeError        EnvelopeType = "error"
)

// Envelope is a validated JSON-RPC payload.
type Envelope struct {
	Type   EnvelopeType
	ID     a2a.ID
	Method string

	// Params holds params for requests and notifications, result for
	// responses and error for error responses. It is nil when the member is
	// absent or null.
	Params jsontext.Value

	// Raw is the payload as received.
	Raw jsontext.Value
}

// EnvelopeProcessor classifies and validates JSON-RPC payloads.
type EnvelopeProcessor struct {
	allowed map[string]struct{}
}

// NewEnvelopeProcessor returns an EnvelopeProcessor accepting only the
// methods in allowed. An empty allow-list accepts every method.
func NewEnvelopeProcessor(allowed []string) *EnvelopeProcessor {
	p := &EnvelopeProcessor{allowed: make(map[string]struct{}, len(allowed))}
	for _, m := range allowed {
		p.allowed[m] = struct{}{}
	}
	return p
}

// ParseEnvelope validates data with the allow-list of [a2a.CoreMethods].
func ParseEnvelope(data []byte) (*Envelope, error) {
	return NewEnvelopeProcessor(a2a.CoreMethods()).Parse(data)
}

// Parse classifies data. On failure the returned envelope still carries
// whatever id and raw payload could be extracted, for the error response.
func (p *EnvelopeProcessor) Parse(data []byte) (*Envelope, error) {
	raw := jsontext.Value(bytes.TrimSpace(data))
	env := &Envelope{Raw: raw}
	if len(raw) == 0 || string(raw) == "null" {
		return env, a2a.NewValidationError("Invalid JSON-RPC envelope: body must not be null", nil)
	}

	if raw.Kind() != '{' {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return env, a2a.NewValidationError("Malformed JSON-RPC payload", err)
		}
		return env, a2a.NewValidationError("Invalid JSON-RPC envelope: payload must be an object", nil)
	}

	var members map[string]jsontext.Value
	if err := json.Unmarshal(raw, &members); err != nil {
		return env, a2a.NewValidationError("Malformed JSON-RPC payload", err)
	}

	idRaw, hasID := members["id"]
	if hasID {
		id, err := a2a.ParseID(idRaw)
		if err != nil {
			return env, a2a.NewValidationError("Invalid JSON-RPC envelope: id must be a string, number, bool or null", err)
		}
		env.ID = id
	}

	var version string
	if v, ok := members["jsonrpc"]; !ok || json.Unmarshal(v, &version) != nil || version != a2a.JSONRPCVersion {
		return env, a2a.NewValidationError(`Invalid JSON-RPC envelope: jsonrpc must be "2.0"`, nil)
	}

	methodRaw, hasMethod := members["method"]
	_, hasResult := members["result"]
	_, hasError := members["error"]

	switch {
	case hasMethod:
		var method string
		if methodRaw.Kind() != '"' || json.Unmarshal(methodRaw, &method) != nil || strings.TrimSpace(method) == "" {
			return env, a2a.NewValidationError("Invalid JSON-RPC envelope: method must be a non-empty string", nil)
		}
		if hasResult || hasError {
			return env, a2a.NewValidationError("Invalid JSON-RPC envelope: request/notification must not contain result or error", nil)
		}
		env.Method = method
		env.Type = EnvelopeNotification
		if hasID {
			env.Type = EnvelopeRequest
		}
		if len(p.allowed) > 0 {
			if _, ok := p.allowed[method]; !ok {
				return env, a2a.NewMethodNotFoundError(method)
			}
		}
		env.Params = normalize(members["params"])

	case hasResult == hasError:
		return env, a2a.NewValidationError("Invalid JSON-RPC envelope: response must contain exactly one of result or error", nil)

	case !hasID:
		return env, a2a.NewValidationError("Invalid JSON-RPC envelope: response must contain id", nil)

	case hasError:
		env.Type = EnvelopeError
		env.Params = normalize(members["error"])

	default:
		env.Type = EnvelopeResponse
		env.Params = normalize(members["result"])
	}
	return env, nil
}

func normalize(v jsontext.Value) jsontext.Value {
	if len(v) == 0 || v.Kind() == 'n' {
		return nil
	}
	return v
}
