// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-a2a/a2a-taskd"
)

func TestErrorKindCode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"invalid params":     {err: a2a.NewInvalidParamsError("GetTask requires taskId"), want: -32602},
		"illegal transition": {err: a2a.NewIllegalStateTransitionError(a2a.TaskStateCompleted, a2a.TaskStateRunning), want: -32602},
		"method not found":   {err: a2a.NewMethodNotFoundError("Nope"), want: -32601},
		"validation":         {err: a2a.NewValidationError("bad envelope", nil), want: -32600},
		"conflict":           {err: a2a.NewOptimisticConflictError("stale", nil), want: -32603},
		"internal":           {err: a2a.NewInternalError("boom", nil), want: -32603},
		"plain error":        {err: errors.New("boom"), want: -32603},
		"wrapped":            {err: fmt.Errorf("persist: %w", a2a.NewTaskNotFoundError("t1")), want: -32602},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := a2a.KindOf(tt.err).Code(); got != tt.want {
				t.Errorf("KindOf(%v).Code() = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestIllegalStateTransitionIsInvalidParams(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("transition: %w", a2a.NewIllegalStateTransitionError(a2a.TaskStateCanceled, a2a.TaskStateRunning))
	if !a2a.IsInvalidParams(err) {
		t.Error("IsInvalidParams() = false, want true")
	}
	if !a2a.IsIllegalStateTransition(err) {
		t.Error("IsIllegalStateTransition() = false, want true")
	}
	if a2a.IsIllegalStateTransition(a2a.NewInvalidParamsError("x")) {
		t.Error("plain InvalidParams reported as IllegalStateTransition")
	}

	var e *a2a.Error
	if !errors.As(err, &e) {
		t.Fatal("errors.As failed")
	}
	if got, want := e.Message, "Illegal task transition: CANCELED -> RUNNING"; got != want {
		t.Fatalf("got %q but want %q", got, want)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	tests := map[string]struct {
		err  *a2a.Error
		want string
	}{
		"message only":      {err: a2a.NewTaskNotFoundError("t9"), want: "Task not found: t9"},
		"message and cause": {err: a2a.NewInternalError("write snapshot", cause), want: "write snapshot: disk full"},
		"cause only":        {err: &a2a.Error{Kind: a2a.KindInternal, Err: cause}, want: "disk full"},
		"bare kind":         {err: &a2a.Error{Kind: a2a.KindMethodNotFound}, want: "MethodNotFound"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
