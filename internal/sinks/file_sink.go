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

// Package sinks implements illustrative downstream consumers that drain an
// internal/ringbuf.Ring of emitted result batches. These are not part of
// the probe handler itself (the engine never imports this package); they
// exist so the output boundary of the engine has a concrete, testable
// consumer on the other side.
package sinks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Sink receives batches of drained result records. T is whatever record
// type an Engine[R] or JoinEngine publishes — engine.Snapshot[R] or
// record.JoinResult.
type Sink[T any] interface {
	Write(batch []T) error
}

// FileSink appends result batches to a JSONL log, one record per line. Each
// batch handed to Write is one step's emission off the ring, so flushing is
// decided per batch, never mid-record: the log on disk always ends on a
// whole line, and a reader replaying it sees only complete step emissions.
// The flush check runs only inside Write: a batch reaches disk on the first
// Write that finds at least flushEvery elapsed since the last flush, or on
// Flush/Close, so with no further writes the tail of the log stays
// buffered. Safe for concurrent use by multiple drain goroutines.
type FileSink[T any] struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder

	flushEvery time.Duration
	lastFlush  time.Time
}

// NewFileSink opens (or creates) the file at path in append mode.
// flushEvery is the minimum time between flushes triggered by Write; a
// caller draining on a tick will typically pass that tick's period.
// Non-positive means flush on every batch. Call Close when done.
func NewFileSink[T any](path string, flushEvery time.Duration) (*FileSink[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	return &FileSink[T]{
		f: f, w: w, enc: json.NewEncoder(w),
		flushEvery: flushEvery, lastFlush: time.Now(),
	}, nil
}

// Write appends batch as JSON lines. An encode failure aborts the batch at
// the failing record — the records already encoded stay in the log, each on
// its own complete line, so a partial batch is visible but never a torn row.
func (s *FileSink[T]) Write(batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range batch {
		if err := s.enc.Encode(&batch[i]); err != nil {
			return fmt.Errorf("encode record %d of %d: %w", i, len(batch), err)
		}
	}
	if time.Since(s.lastFlush) >= s.flushEvery {
		s.lastFlush = time.Now()
		return s.w.Flush()
	}
	return nil
}

// Flush forces buffered batches to disk.
func (s *FileSink[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAllFromFile loads a snapshot log written by FileSink back into
// memory, skipping lines that no longer parse (a truncated tail after a
// crash, or records written under an older schema). Intended for demo
// replay, not production use.
func ReadAllFromFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []T
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err == nil {
			out = append(out, v)
		}
	}
	return out, scanner.Err()
}
