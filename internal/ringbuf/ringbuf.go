// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package ringbuf implements the engine's output boundary: a bounded,
// single-producer single-consumer ring of result records, mirroring the
// reserve-then-submit / peek-then-release protocol the host sandbox's ring
// buffer map exposes. The producer is the engine's probe
// handler, pinned to its own CPU context; the consumer is whatever
// user-space sink (internal/sinks) drains it. There is no mutex: the two
// cursors are only ever advanced by their own side, and are plain atomics
// purely so a consumer draining on another goroutine sees a consistent
// view without a lock, matching the sandbox's lock-free framing.
package ringbuf

import (
	"sync/atomic"

	"ebql/internal/errkind"
)

// Batch is the framing for a reserved-then-submitted group of records: a
// count header plus the records themselves.
type Batch[T any] struct {
	Count   uint32
	Records []T
}

// Ring is a bounded circular buffer of T. Capacity is fixed at
// construction; there is no growth.
type Ring[T any] struct {
	buf  []T
	cap  uint64
	head atomic.Uint64 // producer-owned: next slot index to fill
	tail atomic.Uint64 // consumer-owned: oldest unreleased slot index
}

// New constructs an empty ring of the given capacity.
func New[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, capacity), cap: uint64(capacity)}
}

// Capacity returns the ring's fixed slot count.
func (r *Ring[T]) Capacity() int { return int(r.cap) }

// Len returns the number of submitted-but-unreleased records.
func (r *Ring[T]) Len() int { return int(r.head.Load() - r.tail.Load()) }

// Reserve claims room for up to n records and returns a caller-owned scratch
// slice of that length (clamped to whatever free room remains) for the
// producer to fill. If the ring has no free room at all, it returns
// RingReserveFail and the whole batch must be dropped by the caller.
func (r *Ring[T]) Reserve(n int) ([]T, error) {
	free := r.cap - (r.head.Load() - r.tail.Load())
	if free == 0 {
		return nil, errkind.New(errkind.RingReserveFail, "ring buffer full at capacity %d", r.cap)
	}
	if uint64(n) > free {
		n = int(free)
	}
	return make([]T, n), nil
}

// Submit copies a filled scratch slice (as returned by Reserve) into the
// ring and advances the producer cursor, publishing it to the consumer.
func (r *Ring[T]) Submit(scratch []T) {
	head := r.head.Load()
	for i, v := range scratch {
		r.buf[(head+uint64(i))%r.cap] = v
	}
	r.head.Store(head + uint64(len(scratch)))
}

// Peek returns a Batch view of every submitted-but-unreleased record,
// oldest first, without consuming them. The caller must call Release with
// the number it has actually consumed.
func (r *Ring[T]) Peek() Batch[T] {
	tail, head := r.tail.Load(), r.head.Load()
	n := int(head - tail)
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(tail+uint64(i))%r.cap]
	}
	return Batch[T]{Count: uint32(n), Records: out}
}

// Release advances the consumer cursor by n, freeing those slots for reuse.
func (r *Ring[T]) Release(n int) {
	r.tail.Store(r.tail.Load() + uint64(n))
}
