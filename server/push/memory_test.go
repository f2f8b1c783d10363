// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-a2a/a2a-taskd"
)

func ptr[T any](v T) *T { return &v }

// scriptedNotifier fails the first failures calls and succeeds afterwards.
type scriptedNotifier struct {
	mu       sync.Mutex
	failures int
	calls    []string
}

func (n *scriptedNotifier) Notify(_ context.Context, cfg *a2a.PushNotificationConfig, ev a2a.TaskEvent, attempt int) a2a.PushDeliveryAttempt {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, cfg.ConfigID)
	res := a2a.PushDeliveryAttempt{ConfigID: cfg.ConfigID, EndpointURL: cfg.EndpointURL, AttemptNumber: attempt}
	if n.failures > 0 {
		n.failures--
		res.StatusCode = 503
		res.ErrorMessage = "HTTP 503"
		return res
	}
	res.StatusCode = 200
	res.Success = true
	return res
}

// recordingObserver records observer callbacks as short strings.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnAttempt(context.Context, *a2a.PushNotificationConfig, a2a.TaskEvent, int) {
	o.add("attempt")
}

func (o *recordingObserver) OnSuccess(context.Context, *a2a.PushNotificationConfig, a2a.TaskEvent, a2a.PushDeliveryAttempt) {
	o.add("success")
}

func (o *recordingObserver) OnFailure(_ context.Context, _ *a2a.PushNotificationConfig, _ a2a.TaskEvent, _ a2a.PushDeliveryAttempt, willRetry bool) {
	if willRetry {
		o.add("failure+retry")
		return
	}
	o.add("failure")
}

func TestCreateDefaults(t *testing.T) {
	svc := NewInMemoryConfigService(&scriptedNotifier{})
	ctx := t.Context()

	got, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{
		TaskID:      "  ",
		EndpointURL: "http://example.test/hook",
		Headers:     map[string]string{"X-Trace": "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := &a2a.PushNotificationConfig{
		EndpointURL:    "http://example.test/hook",
		Enabled:        true,
		MaxRetries:     DefaultMaxRetries,
		RetryBackoffMs: DefaultRetryBackoffMs,
		Headers:        map[string]string{"X-Trace": "1"},
	}
	opts := cmpopts.IgnoreFields(a2a.PushNotificationConfig{}, "ConfigID", "CreatedAt", "UpdatedAt")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Create() mismatch (-want +got):\n%s", diff)
	}
	if got.ConfigID == "" || got.CreatedAt.IsZero() {
		t.Errorf("Create() = %+v, want id and creation time", got)
	}

	fetched, err := svc.Get(ctx, got.ConfigID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, fetched); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	got.Headers["X-Trace"] = "mutated"
	fetched, _ = svc.Get(ctx, got.ConfigID)
	if fetched.Headers["X-Trace"] != "1" {
		t.Error("returned config shares its headers with the stored one")
	}
}

func TestConfigValidation(t *testing.T) {
	svc := NewInMemoryConfigService(&scriptedNotifier{})
	ctx := t.Context()

	tests := map[string]struct {
		call    func() error
		wantMsg string
	}{
		"nil request": {
			call:    func() error { _, err := svc.Create(ctx, nil); return err },
			wantMsg: "CreatePushNotificationConfig requires params object",
		},
		"blank endpoint": {
			call: func() error {
				_, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{EndpointURL: " "})
				return err
			},
			wantMsg: "CreatePushNotificationConfig requires endpointUrl",
		},
		"negative retries": {
			call: func() error {
				_, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{EndpointURL: "http://x", MaxRetries: ptr(-1)})
				return err
			},
			wantMsg: "maxRetries must be >= 0",
		},
		"negative backoff": {
			call: func() error {
				_, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{EndpointURL: "http://x", RetryBackoffMs: ptr[int64](-1)})
				return err
			},
			wantMsg: "retryBackoffMs must be >= 0",
		},
		"get blank": {
			call:    func() error { _, err := svc.Get(ctx, ""); return err },
			wantMsg: "GetPushNotificationConfig requires configId",
		},
		"get unknown": {
			call:    func() error { _, err := svc.Get(ctx, "nope"); return err },
			wantMsg: "Push config not found: nope",
		},
		"list zero limit": {
			call:    func() error { _, err := svc.List(ctx, "", ptr(0)); return err },
			wantMsg: "ListPushNotificationConfigs limit must be greater than zero",
		},
		"delete blank": {
			call:    func() error { _, err := svc.Delete(ctx, " "); return err },
			wantMsg: "DeletePushNotificationConfig requires configId",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.call()
			if !a2a.IsInvalidParams(err) {
				t.Fatalf("error = %v, want InvalidParams", err)
			}
			if diff := cmp.Diff(tt.wantMsg, err.(*a2a.Error).Message); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListAndDelete(t *testing.T) {
	svc := NewInMemoryConfigService(&scriptedNotifier{})
	ctx := t.Context()
	fixed := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var ids []string
	for _, taskID := range []string{"t1", "", "t1", "t2"} {
		cfg, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{TaskID: taskID, EndpointURL: "http://x"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, cfg.ConfigID)
	}

	idsOf := func(cfgs []*a2a.PushNotificationConfig) []string {
		var out []string
		for _, c := range cfgs {
			out = append(out, c.ConfigID)
		}
		return out
	}

	all, err := svc.List(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ids, idsOf(all)); diff != "" {
		t.Errorf("List() order mismatch (-want +got):\n%s", diff)
	}

	t1, err := svc.List(ctx, "t1", ptr(1))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ids[:1], idsOf(t1)); diff != "" {
		t.Errorf("List(t1, 1) mismatch (-want +got):\n%s", diff)
	}

	deleted, err := svc.Delete(ctx, ids[0])
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	deleted, err = svc.Delete(ctx, ids[0])
	if err != nil || deleted {
		t.Fatalf("second Delete() = %v, %v, want false", deleted, err)
	}
	if n := svc.Count(); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestOnTaskEventRetries(t *testing.T) {
	notifier := &scriptedNotifier{failures: 2}
	obs := &recordingObserver{}
	svc := NewInMemoryConfigService(notifier, WithObservers(obs))
	ctx := t.Context()

	if _, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{
		TaskID:         "t1",
		EndpointURL:    "http://x",
		MaxRetries:     ptr(3),
		RetryBackoffMs: ptr[int64](0),
	}); err != nil {
		t.Fatal(err)
	}

	svc.OnTaskEvent(ctx, a2a.TaskEvent{TaskID: "t1", Sequence: 1, State: a2a.TaskStateRunning})

	if diff := cmp.Diff(a2a.PushDeliveryStats{Attempts: 3, Successes: 1, Failures: 2}, svc.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
	want := []string{"attempt", "failure+retry", "attempt", "failure+retry", "attempt", "success"}
	if diff := cmp.Diff(want, obs.events); diff != "" {
		t.Errorf("observer events mismatch (-want +got):\n%s", diff)
	}
}

func TestOnTaskEventGivesUp(t *testing.T) {
	notifier := &scriptedNotifier{failures: 100}
	obs := &recordingObserver{}
	svc := NewInMemoryConfigService(notifier, WithObservers(obs), WithRetryCap(1))
	ctx := t.Context()

	if _, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{
		EndpointURL:    "http://x",
		MaxRetries:     ptr(5),
		RetryBackoffMs: ptr[int64](1),
	}); err != nil {
		t.Fatal(err)
	}

	svc.OnTaskEvent(ctx, a2a.TaskEvent{TaskID: "any", Sequence: 1})

	if diff := cmp.Diff(a2a.PushDeliveryStats{Attempts: 2, Failures: 2}, svc.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
	want := []string{"attempt", "failure+retry", "attempt", "failure"}
	if diff := cmp.Diff(want, obs.events); diff != "" {
		t.Errorf("observer events mismatch (-want +got):\n%s", diff)
	}
}

func TestOnTaskEventSelectsConfigs(t *testing.T) {
	notifier := &scriptedNotifier{}
	svc := NewInMemoryConfigService(notifier, WithObservers())
	ctx := t.Context()

	create := func(taskID string, enabled bool) string {
		cfg, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{TaskID: taskID, EndpointURL: "http://x", Enabled: &enabled})
		if err != nil {
			t.Fatal(err)
		}
		return cfg.ConfigID
	}
	global := create("", true)
	mine := create("t1", true)
	create("t2", true)
	create("t1", false)

	svc.OnTaskEvent(ctx, a2a.TaskEvent{TaskID: "t1", Sequence: 1})
	svc.OnTaskEvent(ctx, a2a.TaskEvent{Sequence: 2})

	if diff := cmp.Diff([]string{global, mine}, notifier.calls); diff != "" {
		t.Errorf("delivered configs mismatch (-want +got):\n%s", diff)
	}
}

func TestOnTaskEventStopsOnCancel(t *testing.T) {
	notifier := &scriptedNotifier{failures: 100}
	svc := NewInMemoryConfigService(notifier, WithObservers(), WithMaxBackoff(time.Minute))
	ctx, cancel := context.WithCancel(t.Context())

	if _, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{
		EndpointURL:    "http://x",
		RetryBackoffMs: ptr[int64](60_000),
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		svc.OnTaskEvent(ctx, a2a.TaskEvent{TaskID: "t1", Sequence: 1})
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for svc.Stats().Attempts == 0 {
		select {
		case <-deadline:
			t.Fatal("no delivery attempt")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("OnTaskEvent did not return after cancel")
	}
	if diff := cmp.Diff(a2a.PushDeliveryStats{Attempts: 1, Failures: 1}, svc.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}
