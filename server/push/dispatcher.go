// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-a2a/a2a-taskd"
)

// DefaultDispatchWorkers is the number of concurrent deliveries of a [Dispatcher].
const DefaultDispatchWorkers = 4

// Dispatcher moves event delivery off the publishing goroutine. Its
// Listen method is registered as an event log listener; queued events are
// delivered by a fixed set of workers until Close.
type Dispatcher struct {
	svc    ConfigService
	logger *slog.Logger
	queue  chan a2a.TaskEvent

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher starts workers delivering through svc. Cancelling ctx or
// calling Close stops the workers and interrupts pending backoff waits.
func NewDispatcher(ctx context.Context, svc ConfigService, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultDispatchWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	d := &Dispatcher{
		svc:    svc,
		logger: logger,
		queue:  make(chan a2a.TaskEvent, workers*16),
		ctx:    gctx,
		cancel: cancel,
		group:  g,
	}
	for range workers {
		g.Go(d.work)
	}
	return d
}

// Listen queues ev for delivery. It blocks while the queue is full and
// drops the event once the dispatcher is closed.
func (d *Dispatcher) Listen(_ context.Context, ev a2a.TaskEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Debug("push dispatcher closed, dropping event", "task_id", ev.TaskID, "sequence", ev.Sequence)
		return
	}

	select {
	case d.queue <- ev:
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) work() error {
	for {
		select {
		case ev, ok := <-d.queue:
			if !ok {
				return nil
			}
			d.svc.OnTaskEvent(d.ctx, ev)
		case <-d.ctx.Done():
			return nil
		}
	}
}

// Close stops accepting events, cancels in-flight deliveries and waits for
// the workers to exit.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	return d.group.Wait()
}

// Drain waits until every queued event was delivered, then closes d.
func (d *Dispatcher) Drain() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	err := d.group.Wait()
	d.cancel()
	return err
}
