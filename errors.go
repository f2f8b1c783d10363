// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fault raised by a server component.
type ErrorKind int

const (
	// KindInternal is any unclassified fault.
	KindInternal ErrorKind = iota
	// KindInvalidParams reports missing or malformed method parameters or unknown ids.
	KindInvalidParams
	// KindIllegalStateTransition reports a transition not permitted from the current state.
	// It is a refinement of KindInvalidParams.
	KindIllegalStateTransition
	// KindMethodNotFound reports an unknown or disallowed method.
	KindMethodNotFound
	// KindValidation reports a malformed envelope.
	KindValidation
	// KindOptimisticConflict reports an append rejected because of a stale expected version.
	KindOptimisticConflict
)

var kindNames = map[ErrorKind]string{
	KindInternal:               "Internal",
	KindInvalidParams:          "InvalidParams",
	KindIllegalStateTransition: "IllegalStateTransition",
	KindMethodNotFound:         "MethodNotFound",
	KindValidation:             "Validation",
	KindOptimisticConflict:     "OptimisticConflict",
}

// String implements [fmt.Stringer].
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Code returns the JSON-RPC error code of k.
func (k ErrorKind) Code() int {
	switch k {
	case KindInvalidParams, KindIllegalStateTransition:
		return CodeInvalidParams
	case KindMethodNotFound:
		return CodeMethodNotFound
	case KindValidation:
		return CodeInvalidRequest
	default:
		return CodeInternalError
	}
}

// Error is a classified fault. It travels through ordinary error returns and
// is converted to a JSON-RPC error object at the protocol boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var _ error = (*Error)(nil)

// Error returns the error message.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the JSON-RPC error code of e.
func (e *Error) Code() int {
	return e.Kind.Code()
}

// NewInvalidParamsError creates a new InvalidParams fault.
func NewInvalidParamsError(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// NewIllegalStateTransitionError creates a new IllegalStateTransition fault naming both states.
func NewIllegalStateTransitionError(from, to TaskState) *Error {
	return &Error{
		Kind:    KindIllegalStateTransition,
		Message: fmt.Sprintf("Illegal task transition: %s -> %s", from, to),
	}
}

// NewMethodNotFoundError creates a new MethodNotFound fault.
func NewMethodNotFoundError(method string) *Error {
	return &Error{Kind: KindMethodNotFound, Message: "Method not found: " + method}
}

// NewValidationError creates a new envelope validation fault.
func NewValidationError(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// NewOptimisticConflictError creates a new OptimisticConflict fault.
func NewOptimisticConflictError(message string, err error) *Error {
	return &Error{Kind: KindOptimisticConflict, Message: message, Err: err}
}

// NewInternalError creates a new Internal fault.
func NewInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// NewTaskNotFoundError reports an unknown task id as an InvalidParams fault.
func NewTaskNotFoundError(taskID string) *Error {
	return NewInvalidParamsError("Task not found: %s", taskID)
}

// KindOf returns the kind of the first [*Error] in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsInvalidParams reports whether err is an InvalidParams fault, including
// illegal state transitions.
func IsInvalidParams(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindInvalidParams || k == KindIllegalStateTransition)
}

// IsIllegalStateTransition reports whether err is an IllegalStateTransition fault.
func IsIllegalStateTransition(err error) bool {
	return err != nil && KindOf(err) == KindIllegalStateTransition
}

// IsOptimisticConflict reports whether err is an OptimisticConflict fault.
func IsOptimisticConflict(err error) bool {
	return err != nil && KindOf(err) == KindOptimisticConflict
}
