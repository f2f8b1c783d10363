// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/server/flowstore"
)

// Flow coordinates of the persisted task state.
const (
	TaskFlowType = "a2a.task"
	MetaFlowType = "a2a.meta"
	MetaFlowID   = "global"
)

type taskSnapshot struct {
	Task    *a2a.Task        `json:"task"`
	History []a2a.TaskStatus `json:"history"`
}

type metaSnapshot struct {
	TaskIDs             []string          `json:"taskIds"`
	IdempotencyToTaskID map[string]string `json:"idempotencyToTaskId"`
}

// PersistentService is a [Service] that caches tasks in memory and snapshots
// each of them into a [flowstore.Store] after every mutation.
type PersistentService struct {
	*core
	store flowstore.Store
}

var _ Service = (*PersistentService)(nil)

// NewPersistentService creates a PersistentService over store and restores
// the known task ids and idempotency keys written by earlier instances.
// Tasks themselves are loaded lazily on first access.
func NewPersistentService(ctx context.Context, store flowstore.Store, opts ...Option) (*PersistentService, error) {
	s := &PersistentService{
		core:  newCore(opts...),
		store: store,
	}
	s.core.durable = s
	if err := s.loadMeta(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PersistentService) loadMeta(ctx context.Context) error {
	r, err := s.store.Rehydrate(ctx, MetaFlowType, MetaFlowID)
	if err != nil {
		return a2a.NewInternalError("rehydrate task metadata", err)
	}
	if r.Snapshot == nil || len(r.Snapshot.Blob) == 0 {
		return nil
	}

	var meta metaSnapshot
	if err := json.Unmarshal(r.Snapshot.Blob, &meta); err != nil {
		return a2a.NewInternalError("decode task metadata", err)
	}

	s.mu.Lock()
	for _, id := range meta.TaskIDs {
		s.known[id] = struct{}{}
	}
	s.mu.Unlock()

	s.idemMu.Lock()
	for k, id := range meta.IdempotencyToTaskID {
		s.idem[k] = id
	}
	s.idemMu.Unlock()

	s.logger.InfoContext(ctx, "restored task metadata", "tasks", len(meta.TaskIDs), "idempotency_keys", len(meta.IdempotencyToTaskID))
	return nil
}

func (s *PersistentService) loadTask(ctx context.Context, taskID string) (*record, error) {
	r, err := s.store.Rehydrate(ctx, TaskFlowType, taskID)
	if err != nil {
		return nil, a2a.NewInternalError("rehydrate task "+taskID, err)
	}
	if r.Snapshot == nil || len(r.Snapshot.Blob) == 0 {
		return nil, nil
	}

	var snap taskSnapshot
	if err := json.Unmarshal(r.Snapshot.Blob, &snap); err != nil {
		return nil, a2a.NewInternalError("decode task "+taskID, err)
	}
	if snap.Task == nil {
		return nil, nil
	}
	return &record{task: snap.Task, history: snap.History}, nil
}

func (s *PersistentService) persistTask(ctx context.Context, taskID string, rec *record) error {
	blob, err := json.Marshal(&taskSnapshot{Task: rec.task, History: rec.history})
	if err != nil {
		return a2a.NewInternalError("encode task "+taskID, err)
	}
	if err := s.store.WriteSnapshot(ctx, TaskFlowType, taskID, int64(len(rec.history)), blob, snapshotMetadata()); err != nil {
		return a2a.NewInternalError("write task snapshot", err)
	}
	return nil
}

func (s *PersistentService) persistMeta(ctx context.Context, taskIDs []string, idempotency map[string]string) error {
	blob, err := json.Marshal(&metaSnapshot{TaskIDs: taskIDs, IdempotencyToTaskID: idempotency})
	if err != nil {
		return a2a.NewInternalError("encode task metadata", err)
	}
	if err := s.store.WriteSnapshot(ctx, MetaFlowType, MetaFlowID, int64(len(taskIDs)), blob, snapshotMetadata()); err != nil {
		return a2a.NewInternalError("write task metadata snapshot", err)
	}
	return nil
}

func snapshotMetadata() map[string]string {
	return map[string]string{"updatedAt": time.Now().UTC().Format(time.RFC3339Nano)}
}
