// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// JSONRPCVersion is the only accepted value of the "jsonrpc" member.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC error codes.
const (
	// CodeInvalidRequest reports a malformed envelope.
	CodeInvalidRequest = -32600
	// CodeMethodNotFound reports an unknown method.
	CodeMethodNotFound = -32601
	// CodeInvalidParams reports invalid method parameters.
	CodeInvalidParams = -32602
	// CodeInternalError reports an unclassified server fault.
	CodeInternalError = -32603
)

// ID is a JSON-RPC message id. It keeps the literal JSON value it was
// decoded from so that responses echo a string, number, bool or null id with
// its original type. The zero ID encodes as null.
type ID struct {
	raw jsontext.Value
}

// NewStringID returns a string id.
func NewStringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// NewNumberID returns a numeric id.
func NewNumberID(n int64) ID {
	return ID{raw: jsontext.Value(strconv.FormatInt(n, 10))}
}

// NewBoolID returns a boolean id.
func NewBoolID(b bool) ID {
	return ID{raw: jsontext.Value(strconv.FormatBool(b))}
}

// ParseID returns the id held by the JSON literal v.
func ParseID(v jsontext.Value) (ID, error) {
	var id ID
	if err := id.UnmarshalJSON(v); err != nil {
		return ID{}, err
	}
	return id, nil
}

// IsNull reports whether id is null or unset.
func (id ID) IsNull() bool {
	return len(id.raw) == 0 || id.raw.Kind() == 'n'
}

// Kind returns the JSON kind of the id literal.
func (id ID) Kind() jsontext.Kind {
	if len(id.raw) == 0 {
		return 'n'
	}
	return id.raw.Kind()
}

// Raw returns the compact JSON literal of id.
func (id ID) Raw() jsontext.Value {
	if len(id.raw) == 0 {
		return jsontext.Value("null")
	}
	return bytes.Clone(id.raw)
}

// String returns the textual form of id: the unquoted string for string ids
// and the literal text otherwise.
func (id ID) String() string {
	if id.Kind() == '"' {
		var s string
		if err := json.Unmarshal(id.raw, &s); err == nil {
			return s
		}
	}
	return string(id.Raw())
}

// Equal reports whether id and other hold the same literal.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id.Raw(), other.Raw())
}

// MarshalJSON implements [json.Marshaler].
func (id ID) MarshalJSON() ([]byte, error) {
	return id.Raw(), nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (id *ID) UnmarshalJSON(b []byte) error {
	v := jsontext.Value(bytes.Clone(b))
	if err := v.Compact(); err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	switch v.Kind() {
	case '"', '0', 't', 'f', 'n':
		id.raw = v
		return nil
	default:
		return fmt.Errorf("invalid id: must be a string, number, bool or null, got %s", v.Kind())
	}
}

// JSONRPCError is the error object of a JSON-RPC error response.
type JSONRPCError struct {
	// Code is the error code.
	Code int `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data contains optional additional error details.
	Data any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is a JSON-RPC response envelope. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *JSONRPCError  `json:"error,omitzero"`
	ID      ID             `json:"id"`
}

// NewResultResponse encodes result into a success response carrying id.
func NewResultResponse(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: JSONRPCVersion, Result: raw, ID: id}, nil
}

// NewErrorResponse returns an error response carrying id.
func NewErrorResponse(id ID, code int, message string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		Error:   &JSONRPCError{Code: code, Message: message},
		ID:      id,
	}
}
