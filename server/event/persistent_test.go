// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/server/flowstore"
)

// conflictingStore fails the first n appends with a version conflict.
type conflictingStore struct {
	flowstore.Store
	remaining atomic.Int32
	appends   atomic.Int32
}

func (s *conflictingStore) AppendEvents(ctx context.Context, flowType, flowID string, expectedVersion int64, events []flowstore.Event) (int64, error) {
	s.appends.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return 0, &flowstore.ConflictError{FlowType: flowType, FlowID: flowID, Expected: expectedVersion, Actual: expectedVersion + 1}
	}
	return s.Store.AppendEvents(ctx, flowType, flowID, expectedVersion, events)
}

// flakyReadStore fails the first n event reads.
type flakyReadStore struct {
	flowstore.Store
	remaining atomic.Int32
}

func (s *flakyReadStore) ReadEvents(ctx context.Context, flowType, flowID string, afterSequence int64, limit int) ([]flowstore.Event, error) {
	if s.remaining.Add(-1) >= 0 {
		return nil, errors.New("store unavailable")
	}
	return s.Store.ReadEvents(ctx, flowType, flowID, afterSequence, limit)
}

func TestPersistentLogSurvivesRestart(t *testing.T) {
	store := flowstore.NewMemoryStore()
	ctx := t.Context()

	first := NewPersistentLog(store)
	if err := first.PublishTaskUpdate(ctx, taskIn("t1", a2a.TaskStateRunning, "working")); err != nil {
		t.Fatal(err)
	}
	if err := first.PublishTaskUpdate(ctx, taskIn("t1", a2a.TaskStateWaiting, "input")); err != nil {
		t.Fatal(err)
	}
	want, err := first.ReadEvents(ctx, "t1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	stored, err := store.ReadEvents(ctx, EventsFlowType, "t1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[0].EventType != a2a.EventTypeTaskStatus {
		t.Fatalf("stored events = %+v, want 2 task.status events", stored)
	}

	second := NewPersistentLog(store)
	var notified atomic.Int32
	second.AddListener(func(context.Context, a2a.TaskEvent) { notified.Add(1) })

	got, err := second.ReadEvents(ctx, "t1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got, ignoreEventTime); diff != "" {
		t.Errorf("replayed events mismatch (-want +got):\n%s", diff)
	}
	if n := notified.Load(); n != 0 {
		t.Errorf("replay notified listeners %d times, want 0", n)
	}

	if err := second.PublishTaskUpdate(ctx, taskIn("t1", a2a.TaskStateCompleted, "done")); err != nil {
		t.Fatal(err)
	}
	got, err = second.ReadEvents(ctx, "t1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Sequence != 3 || !got[0].Terminal {
		t.Fatalf("events after restart = %+v, want a terminal event with sequence 3", got)
	}
	if n := notified.Load(); n != 1 {
		t.Errorf("listeners notified %d times, want 1", n)
	}

	third := NewPersistentLog(store)
	terminal, err := third.IsTaskTerminal(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !terminal {
		t.Error("IsTaskTerminal() = false after replaying a COMPLETED event")
	}
	sub, err := third.CreateSubscription(ctx, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Terminal {
		t.Error("subscription created after restart is not terminal")
	}
}

func TestPersistentLogRetriesConflict(t *testing.T) {
	tests := map[string]struct {
		conflicts   int32
		wantErr     bool
		wantAppends int32
	}{
		"no conflict":     {conflicts: 0, wantAppends: 1},
		"one conflict":    {conflicts: 1, wantAppends: 2},
		"second conflict": {conflicts: 2, wantErr: true, wantAppends: 2},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := &conflictingStore{Store: flowstore.NewMemoryStore()}
			store.remaining.Store(tt.conflicts)
			l := NewPersistentLog(store)

			err := l.PublishTaskUpdate(t.Context(), taskIn("t1", a2a.TaskStateRunning, ""))
			if tt.wantErr {
				if !a2a.IsOptimisticConflict(err) {
					t.Fatalf("PublishTaskUpdate() error = %v, want OptimisticConflict", err)
				}
				if !errors.Is(err, flowstore.ErrConflict) {
					t.Errorf("error %v does not wrap flowstore.ErrConflict", err)
				}
				if n := l.BufferedEventCount(); n != 0 {
					t.Errorf("BufferedEventCount() = %d after failed append, want 0", n)
				}
			} else if err != nil {
				t.Fatalf("PublishTaskUpdate() error = %v", err)
			}
			if n := store.appends.Load(); n != tt.wantAppends {
				t.Errorf("appends = %d, want %d", n, tt.wantAppends)
			}
		})
	}
}

func TestPersistentLogOnSQLite(t *testing.T) {
	ctx := t.Context()
	store, err := flowstore.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	l := NewPersistentLog(store)
	for _, state := range []a2a.TaskState{a2a.TaskStateRunning, a2a.TaskStateCanceled} {
		if err := l.PublishTaskUpdate(ctx, taskIn("t1", state, "")); err != nil {
			t.Fatal(err)
		}
	}

	replayed := NewPersistentLog(store)
	got, err := replayed.ReadEvents(ctx, "t1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	var states []a2a.TaskState
	for _, ev := range got {
		states = append(states, ev.State)
	}
	if diff := cmp.Diff([]a2a.TaskState{a2a.TaskStateRunning, a2a.TaskStateCanceled}, states); diff != "" {
		t.Errorf("replayed states mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistentLogHydration(t *testing.T) {
	tests := map[string]struct {
		corrupt    []byte
		readErrors int32
		wantErr    bool
		wantSeqs   []int64
	}{
		"clean": {
			wantSeqs: []int64{1, 2},
		},
		"undecodable payload": {
			corrupt: []byte("{not json"),
			wantErr: true,
		},
		"payload without state": {
			corrupt: []byte(`{"taskId":"t1","message":"lost"}`),
			wantErr: true,
		},
		"read failure then retry": {
			readErrors: 1,
			wantErr:    true,
			wantSeqs:   []int64{1, 2},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			mem := flowstore.NewMemoryStore()
			writer := NewPersistentLog(mem)
			for _, state := range []a2a.TaskState{a2a.TaskStateRunning, a2a.TaskStateWaiting} {
				if err := writer.PublishTaskUpdate(ctx, taskIn("t1", state, "")); err != nil {
					t.Fatal(err)
				}
			}
			if tt.corrupt != nil {
				if _, err := mem.AppendEvents(ctx, EventsFlowType, "t1", 2, []flowstore.Event{{
					EventType: a2a.EventTypeTaskStatus,
					Payload:   tt.corrupt,
				}}); err != nil {
					t.Fatal(err)
				}
			}

			store := &flakyReadStore{Store: mem}
			store.remaining.Store(tt.readErrors)
			l := NewPersistentLog(store)

			_, err := l.ReadEvents(ctx, "t1", 0, 0)
			if tt.wantErr {
				if err == nil || a2a.KindOf(err) != a2a.KindInternal {
					t.Fatalf("ReadEvents() error = %v, want an internal error", err)
				}
				if n := l.BufferedEventCount(); n != 0 {
					t.Fatalf("BufferedEventCount() = %d after failed hydration, want 0", n)
				}
			} else if err != nil {
				t.Fatalf("ReadEvents() error = %v", err)
			}
			if tt.wantSeqs == nil {
				// The failure is sticky: nothing is replayed on a later touch either.
				if _, err := l.ReadEvents(ctx, "t1", 0, 0); err == nil {
					t.Fatal("second ReadEvents() succeeded over an undecodable event")
				}
				if n := l.BufferedEventCount(); n != 0 {
					t.Errorf("BufferedEventCount() = %d, want 0", n)
				}
				return
			}

			got, err := l.ReadEvents(ctx, "t1", 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			seqs := make([]int64, len(got))
			for i, ev := range got {
				seqs[i] = ev.Sequence
			}
			if diff := cmp.Diff(tt.wantSeqs, seqs); diff != "" {
				t.Errorf("sequences mismatch (-want +got):\n%s", diff)
			}

			// New events continue after the stored sequences.
			if err := l.PublishTaskUpdate(ctx, taskIn("t1", a2a.TaskStateCompleted, "")); err != nil {
				t.Fatal(err)
			}
			got, err = l.ReadEvents(ctx, "t1", 2, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].Sequence != 3 {
				t.Errorf("events after hydration = %+v, want one event with sequence 3", got)
			}
		})
	}
}
