// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"errors"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2a-taskd"
)

// CodeOf returns the JSON-RPC error code for err. Errors that are not
// [*a2a.Error] map to [a2a.CodeInternalError].
func CodeOf(err error) int {
	return a2a.KindOf(err).Code()
}

// BuildErrorResponse converts err into an error response. The id is taken
// from env when it was parsed, else recovered from env.Raw, else null.
func BuildErrorResponse(env *Envelope, err error) *a2a.Response {
	code := CodeOf(err)
	return a2a.NewErrorResponse(responseID(env), code, errorMessage(err, code))
}

func responseID(env *Envelope) a2a.ID {
	if env == nil {
		return a2a.ID{}
	}
	if !env.ID.IsNull() {
		return env.ID
	}
	return recoverID(env.Raw)
}

// recoverID extracts the id member of a payload that failed validation.
func recoverID(raw jsontext.Value) a2a.ID {
	if len(raw) == 0 || raw.Kind() != '{' {
		return a2a.ID{}
	}
	var probe struct {
		ID jsontext.Value `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.ID) == 0 {
		return a2a.ID{}
	}
	id, err := a2a.ParseID(probe.ID)
	if err != nil {
		return a2a.ID{}
	}
	return id
}

func errorMessage(err error, code int) string {
	var e *a2a.Error
	if errors.As(err, &e) && strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		return err.Error()
	}
	switch code {
	case a2a.CodeInvalidRequest:
		return "Invalid Request"
	case a2a.CodeMethodNotFound:
		return "Method not found"
	case a2a.CodeInvalidParams:
		return "Invalid params"
	default:
		return "Internal error"
	}
}
