// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/go-a2a/a2a-taskd"
)

// entry keeps the registration order of a config; creation times of
// configs created in the same instant tie.
type entry struct {
	cfg *a2a.PushNotificationConfig
	seq uint64
}

// InMemoryConfigService is a [ConfigService] holding configs in memory.
type InMemoryConfigService struct {
	notifier        Notifier
	observers       []Observer
	customObservers bool
	logger          *slog.Logger
	retryCap        int
	maxBackoff      time.Duration
	now             func() time.Time

	configs sync.Map // map[string]*entry
	seq     atomic.Uint64

	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

var _ ConfigService = (*InMemoryConfigService)(nil)

// NewInMemoryConfigService creates a new InMemoryConfigService delivering
// through notifier.
func NewInMemoryConfigService(notifier Notifier, opts ...Option) *InMemoryConfigService {
	s := &InMemoryConfigService{
		notifier:   notifier,
		logger:     slog.Default(),
		retryCap:   DefaultRetryCap,
		maxBackoff: DefaultMaxBackoff,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	if !s.customObservers {
		s.observers = []Observer{NewLoggingObserver(s.logger)}
	}
	return s
}

// Create implements [ConfigService].
func (s *InMemoryConfigService) Create(ctx context.Context, req *a2a.CreatePushNotificationConfigRequest) (*a2a.PushNotificationConfig, error) {
	if req == nil {
		return nil, a2a.NewInvalidParamsError("CreatePushNotificationConfig requires params object")
	}
	if strings.TrimSpace(req.EndpointURL) == "" {
		return nil, a2a.NewInvalidParamsError("CreatePushNotificationConfig requires endpointUrl")
	}

	maxRetries := DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, a2a.NewInvalidParamsError("maxRetries must be >= 0")
		}
		maxRetries = *req.MaxRetries
	}
	var backoffMs int64 = DefaultRetryBackoffMs
	if req.RetryBackoffMs != nil {
		if *req.RetryBackoffMs < 0 {
			return nil, a2a.NewInvalidParamsError("retryBackoffMs must be >= 0")
		}
		backoffMs = *req.RetryBackoffMs
	}

	now := s.now()
	cfg := &a2a.PushNotificationConfig{
		ConfigID:       uuid.NewString(),
		TaskID:         strings.TrimSpace(req.TaskID),
		EndpointURL:    req.EndpointURL,
		Secret:         req.Secret,
		Enabled:        req.Enabled == nil || *req.Enabled,
		MaxRetries:     maxRetries,
		RetryBackoffMs: backoffMs,
		Headers:        req.Headers,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	cfg = cfg.Clone()
	s.configs.Store(cfg.ConfigID, &entry{cfg: cfg, seq: s.seq.Add(1)})

	return cfg.Clone(), nil
}

// Get implements [ConfigService].
func (s *InMemoryConfigService) Get(ctx context.Context, configID string) (*a2a.PushNotificationConfig, error) {
	if strings.TrimSpace(configID) == "" {
		return nil, a2a.NewInvalidParamsError("GetPushNotificationConfig requires configId")
	}
	v, ok := s.configs.Load(configID)
	if !ok {
		return nil, a2a.NewInvalidParamsError("Push config not found: %s", configID)
	}
	return v.(*entry).cfg.Clone(), nil
}

// List implements [ConfigService].
func (s *InMemoryConfigService) List(ctx context.Context, taskID string, limit *int) ([]*a2a.PushNotificationConfig, error) {
	n := DefaultListLimit
	if limit != nil {
		if *limit <= 0 {
			return nil, a2a.NewInvalidParamsError("ListPushNotificationConfigs limit must be greater than zero")
		}
		n = *limit
	}
	taskID = strings.TrimSpace(taskID)

	entries := s.entries()
	slices.SortFunc(entries, func(a, b *entry) int {
		if c := a.cfg.CreatedAt.Compare(b.cfg.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]*a2a.PushNotificationConfig, 0, min(n, len(entries)))
	for _, e := range entries {
		if taskID != "" && e.cfg.TaskID != taskID {
			continue
		}
		out = append(out, e.cfg.Clone())
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// Delete implements [ConfigService].
func (s *InMemoryConfigService) Delete(ctx context.Context, configID string) (bool, error) {
	if strings.TrimSpace(configID) == "" {
		return false, a2a.NewInvalidParamsError("DeletePushNotificationConfig requires configId")
	}
	_, loaded := s.configs.LoadAndDelete(configID)
	return loaded, nil
}

// OnTaskEvent implements [ConfigService]. Each matching config gets up to
// min(maxRetries, retry cap)+1 attempts spaced by min(retryBackoffMs, max
// backoff). A done ctx stops delivery without further attempts.
func (s *InMemoryConfigService) OnTaskEvent(ctx context.Context, ev a2a.TaskEvent) {
	if strings.TrimSpace(ev.TaskID) == "" {
		return
	}

	var matching []*entry
	for _, e := range s.entries() {
		if e.cfg.Matches(ev.TaskID) {
			matching = append(matching, e)
		}
	}
	slices.SortFunc(matching, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	for _, e := range matching {
		if ctx.Err() != nil {
			return
		}
		if err := s.deliver(ctx, e.cfg, ev); err != nil && ctx.Err() != nil {
			return
		}
	}
}

// deliver runs the attempts of one config. The returned error is the last
// delivery failure or the cause of ctx.
func (s *InMemoryConfigService) deliver(ctx context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent) error {
	maxAttempts := min(cfg.MaxRetries, s.retryCap) + 1
	wait := min(cfg.RetryBackoff(), s.maxBackoff)

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		for _, o := range s.observers {
			o.OnAttempt(ctx, cfg, ev, attempt)
		}
		s.attempts.Add(1)

		res := s.notifier.Notify(ctx, cfg, ev, attempt)
		if res.Success {
			s.successes.Add(1)
			for _, o := range s.observers {
				o.OnSuccess(ctx, cfg, ev, res)
			}
			return struct{}{}, nil
		}

		s.failures.Add(1)
		willRetry := attempt < maxAttempts
		for _, o := range s.observers {
			o.OnFailure(ctx, cfg, ev, res, willRetry)
		}
		return struct{}{}, &deliveryError{attempt: res}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(wait)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

// Stats implements [ConfigService].
func (s *InMemoryConfigService) Stats() a2a.PushDeliveryStats {
	return a2a.PushDeliveryStats{
		Attempts:  s.attempts.Load(),
		Successes: s.successes.Load(),
		Failures:  s.failures.Load(),
	}
}

// Count implements [ConfigService].
func (s *InMemoryConfigService) Count() int {
	n := 0
	s.configs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *InMemoryConfigService) entries() []*entry {
	var out []*entry
	s.configs.Range(func(_, v any) bool {
		out = append(out, v.(*entry))
		return true
	})
	return out
}

// deliveryError is the retryable failure of one attempt.
type deliveryError struct {
	attempt a2a.PushDeliveryAttempt
}

func (e *deliveryError) Error() string {
	if e.attempt.ErrorMessage != "" {
		return e.attempt.ErrorMessage
	}
	return "push delivery failed"
}
