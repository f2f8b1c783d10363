// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"testing"

	"github.com/go-a2a/a2a-taskd"
)

func TestDispatcherDrain(t *testing.T) {
	notifier := &scriptedNotifier{}
	svc := NewInMemoryConfigService(notifier, WithObservers())
	ctx := t.Context()
	if _, err := svc.Create(ctx, &a2a.CreatePushNotificationConfigRequest{EndpointURL: "http://x"}); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(ctx, svc, 2, nil)
	for i := range 10 {
		d.Listen(ctx, a2a.TaskEvent{TaskID: "t1", Sequence: int64(i + 1)})
	}
	if err := d.Drain(); err != nil {
		t.Fatal(err)
	}
	if got := svc.Stats().Successes; got != 10 {
		t.Errorf("Successes = %d, want 10", got)
	}

	d.Listen(ctx, a2a.TaskEvent{TaskID: "t1", Sequence: 11})
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if got := svc.Stats().Attempts; got != 10 {
		t.Errorf("Attempts after close = %d, want 10", got)
	}
}
