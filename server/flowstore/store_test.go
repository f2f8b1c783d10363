// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package flowstore

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
)

type storeFactory func(t *testing.T) Store

func storeFactories(t *testing.T) map[string]storeFactory {
	t.Helper()

	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(t.Context(), ":memory:")
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("A2A_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) Store {
			s, err := OpenPostgres(t.Context(), dsn)
			if err != nil {
				t.Fatalf("OpenPostgres() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}
	}
	return factories
}

// uniqueFlow keeps postgres runs independent of previous data.
func uniqueFlow() string {
	return "flow-" + uuid.NewString()
}

var eventOpts = cmp.Options{
	cmpopts.IgnoreFields(Event{}, "EventID", "OccurredAt"),
	cmpopts.EquateEmpty(),
}

func TestStoreAppendAndRead(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := t.Context()
			flowID := uniqueFlow()

			version, err := s.AppendEvents(ctx, "test.flow", flowID, 0, []Event{
				{EventType: "created", Payload: []byte(`{"n":1}`)},
				{EventType: "updated", Payload: []byte(`{"n":2}`), Metadata: map[string]string{"k": "v"}},
			})
			if err != nil {
				t.Fatalf("AppendEvents() error = %v", err)
			}
			if version != 2 {
				t.Fatalf("version = %d, want 2", version)
			}

			version, err = s.AppendEvents(ctx, "test.flow", flowID, 2, []Event{
				{EventType: "updated", Payload: []byte(`{"n":3}`)},
			})
			if err != nil {
				t.Fatalf("AppendEvents() error = %v", err)
			}
			if version != 3 {
				t.Fatalf("version = %d, want 3", version)
			}

			got, err := s.ReadEvents(ctx, "test.flow", flowID, 1, 10)
			if err != nil {
				t.Fatalf("ReadEvents() error = %v", err)
			}
			want := []Event{
				{FlowType: "test.flow", FlowID: flowID, Sequence: 2, EventType: "updated", Payload: []byte(`{"n":2}`), Metadata: map[string]string{"k": "v"}},
				{FlowType: "test.flow", FlowID: flowID, Sequence: 3, EventType: "updated", Payload: []byte(`{"n":3}`)},
			}
			if diff := cmp.Diff(want, got, eventOpts); diff != "" {
				t.Errorf("ReadEvents() mismatch (-want +got):\n%s", diff)
			}

			page, err := s.ReadEvents(ctx, "test.flow", flowID, 0, 1)
			if err != nil {
				t.Fatalf("ReadEvents() error = %v", err)
			}
			if len(page) != 1 || page[0].Sequence != 1 {
				t.Fatalf("ReadEvents(pageSize=1) = %+v, want only sequence 1", page)
			}
		})
	}
}

func TestStoreAppendConflict(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := t.Context()
			flowID := uniqueFlow()

			if _, err := s.AppendEvents(ctx, "test.flow", flowID, 0, []Event{{EventType: "a"}}); err != nil {
				t.Fatalf("AppendEvents() error = %v", err)
			}
			_, err := s.AppendEvents(ctx, "test.flow", flowID, 0, []Event{{EventType: "b"}})
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("AppendEvents(stale) error = %v, want ErrConflict", err)
			}
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("error %T is not a *ConflictError", err)
			}
			if conflict.Expected != 0 || conflict.Actual != 1 {
				t.Errorf("conflict = %+v, want expected 0 actual 1", conflict)
			}

			events, err := s.ReadEvents(ctx, "test.flow", flowID, 0, 0)
			if err != nil {
				t.Fatalf("ReadEvents() error = %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("len(events) = %d, want 1 after rejected append", len(events))
			}
		})
	}
}

func TestStoreSnapshotAndRehydrate(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := t.Context()
			flowID := uniqueFlow()

			empty, err := s.Rehydrate(ctx, "test.flow", flowID)
			if err != nil {
				t.Fatalf("Rehydrate() error = %v", err)
			}
			if empty.Snapshot != nil || len(empty.Tail) != 0 {
				t.Fatalf("Rehydrate(unknown) = %+v, want empty", empty)
			}

			if _, err := s.AppendEvents(ctx, "test.flow", flowID, 0, []Event{{EventType: "a"}, {EventType: "b"}}); err != nil {
				t.Fatalf("AppendEvents() error = %v", err)
			}
			if err := s.WriteSnapshot(ctx, "test.flow", flowID, 1, []byte(`{"v":1}`), map[string]string{"kind": "test"}); err != nil {
				t.Fatalf("WriteSnapshot() error = %v", err)
			}

			got, err := s.Rehydrate(ctx, "test.flow", flowID)
			if err != nil {
				t.Fatalf("Rehydrate() error = %v", err)
			}
			want := &Rehydrated{
				Snapshot: &Snapshot{Version: 1, Blob: []byte(`{"v":1}`), Metadata: map[string]string{"kind": "test"}},
				Tail:     []Event{{FlowType: "test.flow", FlowID: flowID, Sequence: 2, EventType: "b"}},
			}
			opts := append(eventOpts, cmpopts.IgnoreFields(Snapshot{}, "UpdatedAt"))
			if diff := cmp.Diff(want, got, opts); diff != "" {
				t.Errorf("Rehydrate() mismatch (-want +got):\n%s", diff)
			}

			// Snapshots are replaced, not versioned.
			if err := s.WriteSnapshot(ctx, "test.flow", flowID, 2, []byte(`{"v":2}`), nil); err != nil {
				t.Fatalf("WriteSnapshot() error = %v", err)
			}
			got, err = s.Rehydrate(ctx, "test.flow", flowID)
			if err != nil {
				t.Fatalf("Rehydrate() error = %v", err)
			}
			if got.Snapshot.Version != 2 || string(got.Snapshot.Blob) != `{"v":2}` || len(got.Tail) != 0 {
				t.Errorf("Rehydrate() after overwrite = %+v", got)
			}
		})
	}
}

func TestStoreRejectsEmptyFlow(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.AppendEvents(t.Context(), "", "id", 0, nil)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("AppendEvents() error = %v, want *StoreError", err)
	}
	if storeErr.Operation != "append" {
		t.Errorf("Operation = %q, want append", storeErr.Operation)
	}
}

func TestMemoryStoreCopiesPayloads(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	payload := []byte(`{"a":1}`)
	if _, err := s.AppendEvents(ctx, "f", "1", 0, []Event{{EventType: "x", Payload: payload, OccurredAt: time.Unix(10, 0)}}); err != nil {
		t.Fatal(err)
	}
	payload[2] = 'b'

	events, err := s.ReadEvents(ctx, "f", "1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(events[0].Payload); got != `{"a":1}` {
		t.Errorf("stored payload = %s, want it unchanged", got)
	}
	if !events[0].OccurredAt.Equal(time.Unix(10, 0)) {
		t.Errorf("OccurredAt = %v, want caller value kept", events[0].OccurredAt)
	}
}

func TestOpen(t *testing.T) {
	tests := map[string]struct {
		dsn     string
		want    any
		wantErr bool
	}{
		"empty":          {dsn: "", want: &MemoryStore{}},
		"memory":         {dsn: "memory://", want: &MemoryStore{}},
		"sqlite memory":  {dsn: "sqlite://:memory:", want: &GormStore{}},
		"sqlite default": {dsn: "sqlite://", want: &GormStore{}},
		"no scheme":      {dsn: "nothing", wantErr: true},
		"unknown scheme": {dsn: "redis://localhost", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := Open(t.Context(), tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Open(%q) succeeded, want error", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q) error = %v", tt.dsn, err)
			}
			t.Cleanup(func() { s.Close() })

			switch tt.want.(type) {
			case *MemoryStore:
				if _, ok := s.(*MemoryStore); !ok {
					t.Errorf("Open(%q) = %T, want *MemoryStore", tt.dsn, s)
				}
			case *GormStore:
				if _, ok := s.(*GormStore); !ok {
					t.Errorf("Open(%q) = %T, want *GormStore", tt.dsn, s)
				}
			}
		})
	}
}
