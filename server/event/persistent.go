// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/server/flowstore"
)

// EventsFlowType is the flow type under which task events are persisted.
const EventsFlowType = "a2a.task.events"

// versionPageSize is the page size used to find the current flow version.
const versionPageSize = 500

// persistedStatus is the payload of a persisted task event.
type persistedStatus struct {
	TaskID    string        `json:"taskId"`
	State     a2a.TaskState `json:"state"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

type hydration struct {
	mu   sync.Mutex
	done bool
}

// PersistentLog is a [Log] that appends every event to a [flowstore.Store]
// and replays the stored events of a task into memory the first time the
// task is touched by this process.
type PersistentLog struct {
	*InMemoryLog
	store flowstore.Store

	hydrated sync.Map // map[string]*hydration
}

var _ Log = (*PersistentLog)(nil)

// NewPersistentLog creates a PersistentLog over store.
func NewPersistentLog(store flowstore.Store, opts ...Option) *PersistentLog {
	return &PersistentLog{
		InMemoryLog: NewInMemoryLog(opts...),
		store:       store,
	}
}

// PublishTaskUpdate implements [Log]. The event is stored before it becomes
// visible in memory; a failed append leaves the log unchanged.
func (p *PersistentLog) PublishTaskUpdate(ctx context.Context, task *a2a.Task) error {
	if task == nil || strings.TrimSpace(task.ID) == "" || task.Status.State == "" {
		return nil
	}
	if err := p.ensureHydrated(ctx, task.ID); err != nil {
		return err
	}
	return p.publish(ctx, task, p.appendEvent, true)
}

// CreateSubscription implements [Log].
func (p *PersistentLog) CreateSubscription(ctx context.Context, taskID string, afterSequence int64) (*a2a.TaskSubscription, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, a2a.NewInvalidParamsError("SubscribeToTask requires taskId")
	}
	if err := p.ensureHydrated(ctx, taskID); err != nil {
		return nil, err
	}
	return p.addSubscription(taskID, afterSequence), nil
}

// ReadEvents implements [Log].
func (p *PersistentLog) ReadEvents(ctx context.Context, taskID string, afterSequence int64, limit int) ([]a2a.TaskEvent, error) {
	if err := p.ensureHydrated(ctx, taskID); err != nil {
		return nil, err
	}
	return p.InMemoryLog.ReadEvents(ctx, taskID, afterSequence, limit)
}

// IsTaskTerminal implements [Log].
func (p *PersistentLog) IsTaskTerminal(ctx context.Context, taskID string) (bool, error) {
	if err := p.ensureHydrated(ctx, taskID); err != nil {
		return false, err
	}
	return p.InMemoryLog.IsTaskTerminal(ctx, taskID)
}

// appendEvent stores ev at the current end of the task's flow. A stale
// version is re-resolved once; a second conflict is returned.
func (p *PersistentLog) appendEvent(ctx context.Context, ev a2a.TaskEvent) error {
	payload, err := json.Marshal(&persistedStatus{
		TaskID:    ev.TaskID,
		State:     ev.State,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return a2a.NewInternalError("encode task event", err)
	}
	events := []flowstore.Event{{
		EventType:  ev.EventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}}

	version, err := p.currentVersion(ctx, ev.TaskID)
	if err != nil {
		return err
	}
	_, err = p.store.AppendEvents(ctx, EventsFlowType, ev.TaskID, version, events)
	if errors.Is(err, flowstore.ErrConflict) {
		p.logger.WarnContext(ctx, "task event append conflicted, retrying", "task_id", ev.TaskID, "expected_version", version)
		if version, err = p.currentVersion(ctx, ev.TaskID); err != nil {
			return err
		}
		_, err = p.store.AppendEvents(ctx, EventsFlowType, ev.TaskID, version, events)
		if errors.Is(err, flowstore.ErrConflict) {
			return a2a.NewOptimisticConflictError("append task event for "+ev.TaskID, err)
		}
	}
	if err != nil {
		return a2a.NewInternalError("append task event", err)
	}
	return nil
}

// currentVersion pages through the stored events of taskID and returns the
// highest sequence seen.
func (p *PersistentLog) currentVersion(ctx context.Context, taskID string) (int64, error) {
	var version int64
	for {
		page, err := p.store.ReadEvents(ctx, EventsFlowType, taskID, version, versionPageSize)
		if err != nil {
			return 0, a2a.NewInternalError("read task events", err)
		}
		for _, ev := range page {
			version = max(version, ev.Sequence)
		}
		if len(page) < versionPageSize {
			return version, nil
		}
	}
}

func (p *PersistentLog) ensureHydrated(ctx context.Context, taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return nil
	}
	v, _ := p.hydrated.LoadOrStore(taskID, &hydration{})
	h := v.(*hydration)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}

	events, err := p.loadEvents(ctx, taskID)
	if err != nil {
		return err
	}
	p.restore(taskID, events)

	h.done = true
	if len(events) > 0 {
		p.logger.DebugContext(ctx, "hydrated task events", "task_id", taskID, "events", len(events))
	}
	return nil
}

// loadEvents reads and decodes every stored event of taskID. A payload that
// does not decode fails the whole load.
func (p *PersistentLog) loadEvents(ctx context.Context, taskID string) ([]a2a.TaskEvent, error) {
	var (
		after  int64
		events []a2a.TaskEvent
	)
	for {
		page, err := p.store.ReadEvents(ctx, EventsFlowType, taskID, after, versionPageSize)
		if err != nil {
			return nil, a2a.NewInternalError("hydrate task events", err)
		}
		for _, stored := range page {
			after = stored.Sequence
			var st persistedStatus
			if err := json.Unmarshal(stored.Payload, &st); err != nil {
				return nil, a2a.NewInternalError(fmt.Sprintf("decode task event %d of %s", stored.Sequence, taskID), err)
			}
			if st.State == "" {
				return nil, a2a.NewInternalError(fmt.Sprintf("decode task event %d of %s: missing state", stored.Sequence, taskID), nil)
			}
			ts := st.Timestamp
			if ts.IsZero() {
				ts = stored.OccurredAt
			}
			ev := statusEvent(taskID, st.State, st.Message, ts)
			ev.Sequence = stored.Sequence
			events = append(events, ev)
		}
		if len(page) < versionPageSize {
			return events, nil
		}
	}
}
