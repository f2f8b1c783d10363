// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"slices"

	"github.com/go-a2a/a2a-taskd"
)

var allowedTransitions = map[a2a.TaskState][]a2a.TaskState{
	a2a.TaskStateCreated: {a2a.TaskStateQueued, a2a.TaskStateRunning, a2a.TaskStateCanceled, a2a.TaskStateFailed},
	a2a.TaskStateQueued:  {a2a.TaskStateRunning, a2a.TaskStateCanceled, a2a.TaskStateFailed},
	a2a.TaskStateRunning: {a2a.TaskStateWaiting, a2a.TaskStateCompleted, a2a.TaskStateFailed, a2a.TaskStateCanceled},
	a2a.TaskStateWaiting: {a2a.TaskStateRunning, a2a.TaskStateCanceled, a2a.TaskStateFailed},
}

// CanTransition reports whether a task in state from may move to state to.
// Terminal states have no outgoing transitions.
func CanTransition(from, to a2a.TaskState) bool {
	return slices.Contains(allowedTransitions[from], to)
}
