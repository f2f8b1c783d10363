// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package flowstore provides the append-only event log with snapshots that
// backs the durable task and event services.
//
// A flow is addressed by (flowType, flowID). Its version is the sequence of
// its last committed event. Appends carry the version the caller expects and
// are rejected with a [*ConflictError] when it is stale. Snapshots are opaque
// JSON blobs tagged with a version; rehydration returns the latest snapshot
// together with every event committed after that version.
package flowstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event is a persisted domain event.
type Event struct {
	EventID    string
	FlowType   string
	FlowID     string
	Sequence   int64
	EventType  string
	Payload    []byte
	OccurredAt time.Time
	Metadata   map[string]string
}

// Snapshot is a point-in-time blob of a flow.
type Snapshot struct {
	Version   int64
	Blob      []byte
	Metadata  map[string]string
	UpdatedAt time.Time
}

// Rehydrated is the durable state of a flow: the latest snapshot, if any,
// and the events committed after it.
type Rehydrated struct {
	Snapshot *Snapshot
	Tail     []Event
}

// Store is a durable append-only flow store.
type Store interface {
	// Rehydrate returns the latest snapshot of the flow and the events after it.
	Rehydrate(ctx context.Context, flowType, flowID string) (*Rehydrated, error)

	// AppendEvents appends events to the flow if its current version equals
	// expectedVersion, assigning consecutive sequences, and returns the new version.
	AppendEvents(ctx context.Context, flowType, flowID string, expectedVersion int64, events []Event) (int64, error)

	// WriteSnapshot replaces the snapshot of the flow.
	WriteSnapshot(ctx context.Context, flowType, flowID string, version int64, blob []byte, metadata map[string]string) error

	// ReadEvents returns up to pageSize events with a sequence greater than afterSeq, ascending.
	ReadEvents(ctx context.Context, flowType, flowID string, afterSeq int64, pageSize int) ([]Event, error)

	// Close releases the resources held by the store.
	Close() error
}

// ErrConflict is matched by every [*ConflictError].
var ErrConflict = errors.New("flowstore: optimistic concurrency conflict")

// ConflictError reports an append whose expected version is stale.
type ConflictError struct {
	FlowType string
	FlowID   string
	Expected int64
	Actual   int64
}

// Error returns the error message.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("flowstore: flow %s/%s expected version %d, actual %d", e.FlowType, e.FlowID, e.Expected, e.Actual)
}

// Is reports whether target is [ErrConflict].
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreError reports a failed store operation.
type StoreError struct {
	Operation string
	FlowType  string
	FlowID    string
	Err       error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("flowstore %s operation failed for flow %s/%s: %v", e.Operation, e.FlowType, e.FlowID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op, flowType, flowID string, err error) *StoreError {
	return &StoreError{Operation: op, FlowType: flowType, FlowID: flowID, Err: err}
}

// DefaultPageSize is the page size used when a caller passes a non-positive one.
const DefaultPageSize = 500

func normalizePageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return n
}

func validateFlow(flowType, flowID string) error {
	if flowType == "" {
		return errors.New("flow type cannot be empty")
	}
	if flowID == "" {
		return errors.New("flow id cannot be empty")
	}
	return nil
}
