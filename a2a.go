// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides the protocol model of an Agent-to-Agent task service:
// tasks and their lifecycle states, per-task events and subscriptions, push
// notification configuration, agent cards, the JSON-RPC envelope and the fault
// taxonomy shared by every server component.
package a2a

import (
	"fmt"
	"strings"
)

// CardVersion is the version advertised by agent cards served by this module.
const CardVersion = "0.5.0"

// TaskState represents the lifecycle state of a [Task].
type TaskState string

const (
	// TaskStateCreated is the initial state of every task.
	TaskStateCreated TaskState = "CREATED"
	// TaskStateQueued indicates the task waits for a worker.
	TaskStateQueued TaskState = "QUEUED"
	// TaskStateRunning indicates the task is being worked on.
	TaskStateRunning TaskState = "RUNNING"
	// TaskStateWaiting indicates the task waits for further input.
	TaskStateWaiting TaskState = "WAITING"
	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "COMPLETED"
	// TaskStateFailed indicates the task finished with an error.
	TaskStateFailed TaskState = "FAILED"
	// TaskStateCanceled indicates the task was canceled.
	TaskStateCanceled TaskState = "CANCELED"
)

// TaskStates lists every known state in declaration order.
var TaskStates = []TaskState{
	TaskStateCreated,
	TaskStateQueued,
	TaskStateRunning,
	TaskStateWaiting,
	TaskStateCompleted,
	TaskStateFailed,
	TaskStateCanceled,
}

// IsTerminal reports whether no further transitions are permitted out of s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known states.
func (s TaskState) IsValid() bool {
	for _, st := range TaskStates {
		if s == st {
			return true
		}
	}
	return false
}

// String implements [fmt.Stringer].
func (s TaskState) String() string {
	return string(s)
}

// ParseTaskState parses a case-insensitive state name.
func ParseTaskState(s string) (TaskState, error) {
	st := TaskState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown task state %q", s)
	}
	return st, nil
}
