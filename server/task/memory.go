// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
)

// record is an immutable view of a task and its history. Mutations replace
// the record in the map instead of editing it.
type record struct {
	task    *a2a.Task
	history []a2a.TaskStatus
}

// durability persists records for [PersistentService].
type durability interface {
	loadTask(ctx context.Context, taskID string) (*record, error)
	persistTask(ctx context.Context, taskID string, rec *record) error
	persistMeta(ctx context.Context, taskIDs []string, idempotency map[string]string) error
}

// core holds the state machine shared by the in-memory and persistent services.
type core struct {
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Metrics
	now       func() time.Time

	locks *LockTable

	mu      sync.RWMutex
	records map[string]*record
	known   map[string]struct{}

	idemMu sync.Mutex
	idem   map[string]string

	durable durability
}

func newCore(opts ...Option) *core {
	c := &core{
		publisher: noopPublisher{},
		logger:    slog.Default(),
		tracer:    telemetry.Tracer(),
		metrics:   telemetry.DefaultMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
		locks:     NewLockTable(),
		records:   make(map[string]*record),
		known:     make(map[string]struct{}),
		idem:      make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// InMemoryService is a [Service] keeping every task in process memory.
type InMemoryService struct {
	*core
}

var _ Service = (*InMemoryService)(nil)

// NewInMemoryService creates a new InMemoryService.
func NewInMemoryService(opts ...Option) *InMemoryService {
	return &InMemoryService{core: newCore(opts...)}
}

// idempotencyKey derives the deduplication key of a submission.
func idempotencyKey(req *a2a.SendMessageRequest) string {
	if k := strings.TrimSpace(req.IdempotencyKey); k != "" {
		return "request:" + k
	}
	if req.Message != nil {
		if id := strings.TrimSpace(req.Message.MessageID); id != "" {
			return "message:" + id
		}
	}
	return ""
}

// SendMessage implements [Service].
func (c *core) SendMessage(ctx context.Context, req *a2a.SendMessageRequest) (*a2a.Task, error) {
	ctx, span := c.tracer.Start(ctx, "a2a.task.SendMessage")
	defer span.End()

	if req == nil || req.Message == nil {
		return nil, a2a.NewInvalidParamsError("SendMessage requires message")
	}

	key := idempotencyKey(req)

	c.idemMu.Lock()
	defer c.idemMu.Unlock()

	if key != "" {
		if existing, ok := c.idem[key]; ok {
			span.SetAttributes(attribute.String("a2a.task_id", existing), attribute.Bool("a2a.deduplicated", true))
			return c.GetTask(ctx, existing)
		}
	}

	now := c.now()
	taskID := uuid.NewString()
	span.SetAttributes(attribute.String("a2a.task_id", taskID))

	msg := req.Message.Clone()
	status := a2a.TaskStatus{
		State:     a2a.TaskStateCreated,
		Message:   "Task created",
		UpdatedAt: now,
	}
	task := &a2a.Task{
		ID:             taskID,
		ConversationID: req.ConversationID,
		Status:         status,
		LatestMessage:  msg,
		Messages:       []a2a.Message{*msg},
		Metadata:       maps.Clone(req.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	unlock := c.locks.Lock(taskID)
	defer unlock()

	// The metadata lists the task before its snapshot exists so a restart
	// never finds a snapshot nothing refers to.
	idem := maps.Clone(c.idem)
	if key != "" {
		idem[key] = taskID
	}
	if c.durable != nil {
		if err := c.durable.persistMeta(ctx, append(c.knownIDs(), taskID), idem); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	rec := &record{task: task, history: []a2a.TaskStatus{status}}
	if err := c.commit(ctx, taskID, nil, rec); err != nil {
		if c.durable != nil {
			if rerr := c.durable.persistMeta(ctx, c.knownIDs(), maps.Clone(c.idem)); rerr != nil {
				c.logger.ErrorContext(ctx, "failed to restore task metadata", slog.String("task_id", taskID), slog.Any("error", rerr))
			}
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.idem = idem
	c.logger.InfoContext(ctx, "task created", slog.String("task_id", taskID), slog.String("idempotency_key", key))

	return c.transitionLocked(ctx, taskID, a2a.TaskStateRunning, "Task created from SendMessage")
}

// GetTask implements [Service].
func (c *core) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, a2a.NewInvalidParamsError("taskId is required")
	}
	if err := c.ensureLoaded(ctx, taskID); err != nil {
		return nil, err
	}

	rec := c.get(taskID)
	if rec == nil {
		return nil, a2a.NewTaskNotFoundError(taskID)
	}
	return rec.task.Clone(), nil
}

// ListTasks implements [Service].
func (c *core) ListTasks(ctx context.Context, req *a2a.ListTasksRequest) ([]*a2a.Task, error) {
	if c.durable != nil {
		for _, id := range c.knownIDs() {
			if err := c.ensureLoaded(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	var state string
	limit := 0
	if req != nil {
		state = strings.ToUpper(strings.TrimSpace(req.State))
		if req.Limit != nil {
			limit = *req.Limit
		}
	}

	c.mu.RLock()
	tasks := make([]*a2a.Task, 0, len(c.records))
	for _, rec := range c.records {
		if state != "" && string(rec.task.Status.State) != state {
			continue
		}
		tasks = append(tasks, rec.task.Clone())
	}
	c.mu.RUnlock()

	slices.SortFunc(tasks, func(a, b *a2a.Task) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// CancelTask implements [Service].
func (c *core) CancelTask(ctx context.Context, req *a2a.CancelTaskRequest) (*a2a.Task, error) {
	if req == nil || strings.TrimSpace(req.TaskID) == "" {
		return nil, a2a.NewInvalidParamsError("CancelTask requires taskId")
	}
	reason := req.Reason
	if strings.TrimSpace(reason) == "" {
		reason = "Task canceled"
	}
	return c.TransitionTask(ctx, req.TaskID, a2a.TaskStateCanceled, reason)
}

// TransitionTask implements [Service].
func (c *core) TransitionTask(ctx context.Context, taskID string, target a2a.TaskState, reason string) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, a2a.NewInvalidParamsError("taskId is required")
	}
	if target == "" {
		return nil, a2a.NewInvalidParamsError("targetState is required")
	}
	if !target.IsValid() {
		return nil, a2a.NewInvalidParamsError("Unknown target state: %s", target)
	}
	if err := c.ensureLoaded(ctx, taskID); err != nil {
		return nil, err
	}
	if c.get(taskID) == nil {
		return nil, a2a.NewTaskNotFoundError(taskID)
	}

	unlock := c.locks.Lock(taskID)
	defer unlock()

	return c.transitionLocked(ctx, taskID, target, reason)
}

// transitionLocked applies a transition. The caller holds the task lock.
func (c *core) transitionLocked(ctx context.Context, taskID string, target a2a.TaskState, reason string) (*a2a.Task, error) {
	rec := c.get(taskID)
	if rec == nil {
		return nil, a2a.NewTaskNotFoundError(taskID)
	}

	current := rec.task.Status.State
	if current == "" {
		current = a2a.TaskStateCreated
	}
	if current == target {
		return rec.task.Clone(), nil
	}
	if !CanTransition(current, target) {
		return nil, a2a.NewIllegalStateTransitionError(current, target)
	}

	if strings.TrimSpace(reason) == "" {
		reason = "State changed to " + string(target)
	}
	now := c.now()
	next := a2a.TaskStatus{
		State:     target,
		Message:   reason,
		UpdatedAt: now,
		Details:   maps.Clone(rec.task.Status.Details),
	}

	task := rec.task.Clone()
	task.Status = next
	task.UpdatedAt = now
	updated := &record{
		task:    task,
		history: append(slices.Clip(rec.history), next),
	}
	if err := c.commit(ctx, taskID, rec, updated); err != nil {
		return nil, err
	}

	c.metrics.TaskTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.state", string(target))))
	c.logger.DebugContext(ctx, "task transitioned",
		slog.String("task_id", taskID),
		slog.String("from", string(current)),
		slog.String("to", string(target)),
	)
	return task.Clone(), nil
}

// commit makes updated the current record of taskID. The record is persisted
// and published before readers can see it. When the publisher rejects it the
// snapshot of prev is written back and the task is left as it was.
func (c *core) commit(ctx context.Context, taskID string, prev, updated *record) error {
	if c.durable != nil {
		if err := c.durable.persistTask(ctx, taskID, updated); err != nil {
			return err
		}
	}
	if err := c.publisher.PublishTaskUpdate(ctx, updated.task.Clone()); err != nil {
		if c.durable != nil && prev != nil {
			if rerr := c.durable.persistTask(ctx, taskID, prev); rerr != nil {
				c.logger.ErrorContext(ctx, "failed to restore task snapshot", slog.String("task_id", taskID), slog.Any("error", rerr))
			}
		}
		return err
	}
	c.put(taskID, updated)
	return nil
}

// GetTaskHistory implements [Service].
func (c *core) GetTaskHistory(ctx context.Context, taskID string) ([]a2a.TaskStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, a2a.NewInvalidParamsError("taskId is required")
	}
	if err := c.ensureLoaded(ctx, taskID); err != nil {
		return nil, err
	}

	rec := c.get(taskID)
	if rec == nil {
		return nil, a2a.NewTaskNotFoundError(taskID)
	}
	history := make([]a2a.TaskStatus, len(rec.history))
	for i, st := range rec.history {
		st.Details = maps.Clone(st.Details)
		history[i] = st
	}
	return history, nil
}

// SweepLocks drops the idle per-task locks of terminal or unknown tasks and
// returns how many were dropped.
func (c *core) SweepLocks() int {
	return c.locks.Sweep(func(taskID string) bool {
		rec := c.get(taskID)
		return rec == nil || rec.task.Status.State.IsTerminal()
	})
}

// LockCount returns the number of live per-task locks.
func (c *core) LockCount() int {
	return c.locks.Len()
}

func (c *core) get(taskID string) *record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[taskID]
}

func (c *core) put(taskID string, rec *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[taskID] = rec
	c.known[taskID] = struct{}{}
}

func (c *core) knownIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := slices.Collect(maps.Keys(c.known))
	slices.Sort(ids)
	return ids
}

// ensureLoaded hydrates a task from the durable store on first access.
func (c *core) ensureLoaded(ctx context.Context, taskID string) error {
	if c.durable == nil || c.get(taskID) != nil {
		return nil
	}
	c.mu.RLock()
	_, ok := c.known[taskID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	rec, err := c.durable.loadTask(ctx, taskID)
	if err != nil || rec == nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[taskID]; !ok {
		c.records[taskID] = rec
		c.known[taskID] = struct{}{}
	}
	return nil
}
