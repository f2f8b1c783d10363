// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package flowstore

import (
	"bytes"
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type flowKey struct {
	flowType string
	flowID   string
}

type memoryFlow struct {
	events   []Event
	snapshot *Snapshot
}

// MemoryStore is an in-memory implementation of [Store].
// Data is lost when the process stops; it is shared by every service built
// on the same instance, which is what tests use to simulate a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[flowKey]*memoryFlow
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows: make(map[flowKey]*memoryFlow),
	}
}

// Rehydrate implements [Store].
func (s *MemoryStore) Rehydrate(ctx context.Context, flowType, flowID string) (*Rehydrated, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &Rehydrated{}
	flow, ok := s.flows[flowKey{flowType, flowID}]
	if !ok {
		return out, nil
	}

	var after int64
	if flow.snapshot != nil {
		snap := copySnapshot(flow.snapshot)
		out.Snapshot = &snap
		after = snap.Version
	}
	for _, ev := range flow.events {
		if ev.Sequence > after {
			out.Tail = append(out.Tail, copyEvent(ev))
		}
	}
	return out, nil
}

// AppendEvents implements [Store].
func (s *MemoryStore) AppendEvents(ctx context.Context, flowType, flowID string, expectedVersion int64, events []Event) (int64, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return 0, newStoreError("append", flowType, flowID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := flowKey{flowType, flowID}
	flow, ok := s.flows[key]
	if !ok {
		flow = &memoryFlow{}
		s.flows[key] = flow
	}

	current := int64(len(flow.events))
	if current != expectedVersion {
		return current, &ConflictError{FlowType: flowType, FlowID: flowID, Expected: expectedVersion, Actual: current}
	}

	now := time.Now().UTC()
	for _, ev := range events {
		current++
		ev = copyEvent(ev)
		ev.FlowType = flowType
		ev.FlowID = flowID
		ev.Sequence = current
		if ev.EventID == "" {
			ev.EventID = uuid.NewString()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = now
		}
		flow.events = append(flow.events, ev)
	}
	return current, nil
}

// WriteSnapshot implements [Store].
func (s *MemoryStore) WriteSnapshot(ctx context.Context, flowType, flowID string, version int64, blob []byte, metadata map[string]string) error {
	if err := validateFlow(flowType, flowID); err != nil {
		return newStoreError("write snapshot", flowType, flowID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := flowKey{flowType, flowID}
	flow, ok := s.flows[key]
	if !ok {
		flow = &memoryFlow{}
		s.flows[key] = flow
	}
	flow.snapshot = &Snapshot{
		Version:   version,
		Blob:      bytes.Clone(blob),
		Metadata:  maps.Clone(metadata),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// ReadEvents implements [Store].
func (s *MemoryStore) ReadEvents(ctx context.Context, flowType, flowID string, afterSeq int64, pageSize int) ([]Event, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return nil, newStoreError("read events", flowType, flowID, err)
	}
	pageSize = normalizePageSize(pageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[flowKey{flowType, flowID}]
	if !ok {
		return nil, nil
	}

	var page []Event
	for _, ev := range flow.events {
		if ev.Sequence <= afterSeq {
			continue
		}
		page = append(page, copyEvent(ev))
		if len(page) == pageSize {
			break
		}
	}
	return page, nil
}

// Close implements [Store].
func (s *MemoryStore) Close() error {
	return nil
}

func copyEvent(ev Event) Event {
	ev.Payload = bytes.Clone(ev.Payload)
	ev.Metadata = maps.Clone(ev.Metadata)
	return ev
}

func copySnapshot(s *Snapshot) Snapshot {
	c := *s
	c.Blob = bytes.Clone(s.Blob)
	c.Metadata = maps.Clone(s.Metadata)
	return c
}
