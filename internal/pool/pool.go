// Copyright 2025 The Go A2A Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package pool provides typed object pooling for the buffers used to render
// server-sent events, webhook bodies and stream URLs.
package pool

import (
	"bytes"
	"strings"
	"sync"
)

// Pool is a strongly-typed wrapper around [sync.Pool].
type Pool[T any] struct {
	p sync.Pool
}

// Reseter is implemented by pooled values that must be cleared before reuse.
type Reseter interface {
	Reset()
}

// New returns a new [Pool] for T, using fn to construct values when the pool is empty.
func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any {
				return fn()
			},
		},
	}
}

// Get takes a T from the pool.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put resets x when it is a [Reseter] and returns it to the pool.
func (p *Pool[T]) Put(x T) {
	if r, ok := any(x).(Reseter); ok {
		r.Reset()
	}
	p.p.Put(x)
}

// Bytes pools [*bytes.Buffer] values.
var Bytes = New(func() *bytes.Buffer {
	return &bytes.Buffer{}
})

// String pools [*strings.Builder] values.
var String = New(func() *strings.Builder {
	return &strings.Builder{}
})
