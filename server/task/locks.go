// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"sync"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// LockTable hands out one mutex per key, created on first use and reused
// until swept.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewLockTable creates an empty LockTable.
func NewLockTable() *LockTable {
	return &LockTable{entries: make(map[string]*lockEntry)}
}

// Lock acquires the mutex of key and returns the function releasing it.
func (t *LockTable) Lock(key string) (unlock func()) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		t.mu.Unlock()
	}
}

// Sweep drops the mutexes that are neither held nor awaited and for which
// drop reports true. It returns the number of dropped entries.
func (t *LockTable) Sweep(drop func(key string) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, e := range t.entries {
		if e.refs == 0 && drop(key) {
			delete(t.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of live mutexes.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
