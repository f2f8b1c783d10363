// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
)

// stream is the event buffer of one task. seq is the last assigned sequence
// and survives trimming of the buffer.
type stream struct {
	mu     sync.Mutex
	seq    int64
	events []a2a.TaskEvent
}

// terminal reports whether the last event closed the task. The caller holds mu.
func (st *stream) terminal() bool {
	return len(st.events) > 0 && st.events[len(st.events)-1].Terminal
}

// persistFunc stores an event before it becomes visible. It runs under the
// task's stream lock, so durable order equals sequence order.
type persistFunc func(ctx context.Context, ev a2a.TaskEvent) error

// InMemoryLog is a [Log] keeping a bounded buffer of events per task.
type InMemoryLog struct {
	capacity int
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	streamsMu sync.Mutex
	streams   map[string]*stream

	subsMu sync.RWMutex
	subs   map[string]*a2a.TaskSubscription

	listenersMu sync.RWMutex
	listeners   []Listener
}

var _ Log = (*InMemoryLog)(nil)

// NewInMemoryLog creates a new InMemoryLog.
func NewInMemoryLog(opts ...Option) *InMemoryLog {
	l := &InMemoryLog{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		metrics:  telemetry.DefaultMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
		streams:  make(map[string]*stream),
		subs:     make(map[string]*a2a.TaskSubscription),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// PublishTaskUpdate implements [Log].
func (l *InMemoryLog) PublishTaskUpdate(ctx context.Context, task *a2a.Task) error {
	return l.publish(ctx, task, nil, true)
}

// publish appends the event of task's current status. persist, when set,
// must succeed before the event is appended. notify selects whether
// listeners see the event; replayed events are not re-announced.
func (l *InMemoryLog) publish(ctx context.Context, task *a2a.Task, persist persistFunc, notify bool) error {
	if task == nil || strings.TrimSpace(task.ID) == "" || task.Status.State == "" {
		return nil
	}

	ts := task.Status.UpdatedAt
	if ts.IsZero() {
		ts = l.now()
	}
	ev := statusEvent(task.ID, task.Status.State, task.Status.Message, ts)

	st := l.stream(task.ID)
	st.mu.Lock()
	ev.Sequence = st.seq + 1
	if persist != nil {
		if err := persist(ctx, ev); err != nil {
			st.mu.Unlock()
			return err
		}
	}
	st.seq = ev.Sequence
	st.events = append(st.events, ev)
	if n := len(st.events); n > l.capacity {
		st.events = slices.Clone(st.events[n-l.capacity:])
	}
	// Subscriptions register under the stream lock too, so none can miss
	// the terminal mark.
	if ev.Terminal {
		l.markTerminal(task.ID)
	}
	st.mu.Unlock()

	if notify {
		l.metrics.EventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.state", string(ev.State))))
		l.notify(ctx, ev)
	}
	return nil
}

// restore loads stored events of taskID, keeping their sequences. Events at
// or below the stream's last sequence are skipped.
func (l *InMemoryLog) restore(taskID string, events []a2a.TaskEvent) {
	if len(events) == 0 {
		return
	}
	st := l.stream(taskID)
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, ev := range events {
		if ev.Sequence <= st.seq {
			continue
		}
		st.seq = ev.Sequence
		st.events = append(st.events, ev)
	}
	if n := len(st.events); n > l.capacity {
		st.events = slices.Clone(st.events[n-l.capacity:])
	}
	if st.terminal() {
		l.markTerminal(taskID)
	}
}

func statusEvent(taskID string, state a2a.TaskState, message string, ts time.Time) a2a.TaskEvent {
	return a2a.TaskEvent{
		TaskID:    taskID,
		EventType: a2a.EventTypeTaskStatus,
		State:     state,
		Message:   message,
		Timestamp: ts,
		Terminal:  state.IsTerminal(),
		Payload: map[string]any{
			"taskId":  taskID,
			"state":   string(state),
			"message": message,
		},
	}
}

// CreateSubscription implements [Log].
func (l *InMemoryLog) CreateSubscription(ctx context.Context, taskID string, afterSequence int64) (*a2a.TaskSubscription, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, a2a.NewInvalidParamsError("SubscribeToTask requires taskId")
	}
	return l.addSubscription(taskID, afterSequence), nil
}

// addSubscription registers a subscription to taskID. Terminality is read and
// the subscription stored while holding the task's stream lock, the lock
// publish holds while marking subscriptions terminal.
func (l *InMemoryLog) addSubscription(taskID string, afterSequence int64) *a2a.TaskSubscription {
	now := l.now()
	after := max(0, afterSequence)
	sub := &a2a.TaskSubscription{
		SubscriptionID:        uuid.NewString(),
		TaskID:                taskID,
		AfterSequence:         after,
		LastDeliveredSequence: after,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	st := l.stream(taskID)
	st.mu.Lock()
	sub.Terminal = st.terminal()
	l.subsMu.Lock()
	l.subs[sub.SubscriptionID] = sub
	l.subsMu.Unlock()
	st.mu.Unlock()

	cp := *sub
	return &cp
}

// ReadEvents implements [Log].
func (l *InMemoryLog) ReadEvents(ctx context.Context, taskID string, afterSequence int64, limit int) ([]a2a.TaskEvent, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, a2a.NewInvalidParamsError("taskId is required")
	}
	size := resolveReadSize(limit)

	st := l.lookup(taskID)
	if st == nil {
		return []a2a.TaskEvent{}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]a2a.TaskEvent, 0, min(size, len(st.events)))
	for _, ev := range st.events {
		if ev.Sequence <= afterSequence {
			continue
		}
		out = append(out, cloneEvent(ev))
		if len(out) == size {
			break
		}
	}
	return out, nil
}

// Acknowledge implements [Log].
func (l *InMemoryLog) Acknowledge(ctx context.Context, subscriptionID string, lastDelivered int64, terminal bool) {
	if strings.TrimSpace(subscriptionID) == "" {
		return
	}

	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	sub, ok := l.subs[subscriptionID]
	if !ok {
		return
	}
	sub.LastDeliveredSequence = max(sub.LastDeliveredSequence, lastDelivered)
	sub.UpdatedAt = l.now()
	if terminal {
		sub.Terminal = true
	}
}

// GetSubscription implements [Log].
func (l *InMemoryLog) GetSubscription(subscriptionID string) (*a2a.TaskSubscription, bool) {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()

	sub, ok := l.subs[subscriptionID]
	if !ok {
		return nil, false
	}
	cp := *sub
	return &cp, true
}

// IsTaskTerminal implements [Log].
func (l *InMemoryLog) IsTaskTerminal(ctx context.Context, taskID string) (bool, error) {
	st := l.lookup(taskID)
	if st == nil {
		return false, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.terminal(), nil
}

// CleanupTerminalSubscriptions implements [Log].
func (l *InMemoryLog) CleanupTerminalSubscriptions() int {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	n := 0
	for id, sub := range l.subs {
		if sub.Terminal {
			delete(l.subs, id)
			n++
		}
	}
	return n
}

// ActiveSubscriptionCount implements [Log].
func (l *InMemoryLog) ActiveSubscriptionCount() int {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()

	n := 0
	for _, sub := range l.subs {
		if !sub.Terminal {
			n++
		}
	}
	return n
}

// BufferedEventCount implements [Log].
func (l *InMemoryLog) BufferedEventCount() int {
	l.streamsMu.Lock()
	streams := slices.Collect(maps.Values(l.streams))
	l.streamsMu.Unlock()

	total := 0
	for _, st := range streams {
		st.mu.Lock()
		total += len(st.events)
		st.mu.Unlock()
	}
	return total
}

// AddListener implements [Log].
func (l *InMemoryLog) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	l.listenersMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenersMu.Unlock()
}

func (l *InMemoryLog) stream(taskID string) *stream {
	l.streamsMu.Lock()
	defer l.streamsMu.Unlock()

	st, ok := l.streams[taskID]
	if !ok {
		st = &stream{}
		l.streams[taskID] = st
	}
	return st
}

func (l *InMemoryLog) lookup(taskID string) *stream {
	l.streamsMu.Lock()
	defer l.streamsMu.Unlock()
	return l.streams[taskID]
}

// markTerminal flags every subscription of taskID. The caller holds the
// task's stream lock.
func (l *InMemoryLog) markTerminal(taskID string) {
	now := l.now()

	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	for _, sub := range l.subs {
		if sub.TaskID == taskID {
			sub.Terminal = true
			sub.UpdatedAt = now
		}
	}
}

func (l *InMemoryLog) notify(ctx context.Context, ev a2a.TaskEvent) {
	l.listenersMu.RLock()
	listeners := slices.Clone(l.listeners)
	l.listenersMu.RUnlock()

	for _, fn := range listeners {
		l.call(ctx, fn, ev)
	}
}

func (l *InMemoryLog) call(ctx context.Context, fn Listener, ev a2a.TaskEvent) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "task event listener panicked",
				slog.String("task_id", ev.TaskID),
				slog.Int64("sequence", ev.Sequence),
				slog.Any("panic", r),
			)
		}
	}()
	fn(ctx, cloneEvent(ev))
}

func cloneEvent(ev a2a.TaskEvent) a2a.TaskEvent {
	ev.Payload = maps.Clone(ev.Payload)
	return ev
}
