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

package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStreamer abstracts the minimal surface a RedisSink needs from a
// Redis client: publishing one field onto a stream. Implementations may
// wrap github.com/redis/go-redis/v9 (Cmdable.XAdd) or any equivalent.
type RedisStreamer interface {
	XAdd(ctx context.Context, stream, field string, value []byte) error
}

// LoggingRedisStreamer is a tiny demo streamer that just logs the publish.
// It lets the demo select the Redis adapter without needing a real Redis.
// Not for production use.
type LoggingRedisStreamer struct{}

func (LoggingRedisStreamer) XAdd(ctx context.Context, stream, field string, value []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] XADD stream=%s field=%s value(len=%d)\n", stream, field, len(value))
	return nil
}

// GoRedisStreamer is a production Redis client wrapper implementing
// RedisStreamer, backed by github.com/redis/go-redis/v9.
type GoRedisStreamer struct{ c *redis.Client }

// NewGoRedisStreamer constructs a streamer against a Redis instance at addr
// (e.g. "127.0.0.1:6379").
func NewGoRedisStreamer(addr string) *GoRedisStreamer {
	return &GoRedisStreamer{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisStreamer) XAdd(ctx context.Context, stream, field string, value []byte) error {
	return g.c.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{field: value},
	}).Err()
}

// RedisSink publishes result batches to a Redis stream, one XADD entry per
// record, JSON-encoded under a fixed field name. Production wiring supplies
// a GoRedisStreamer; the dependency-free demo path falls back to
// LoggingRedisStreamer.
type RedisSink[T any] struct {
	streamer RedisStreamer
	stream   string
	field    string
	timeout  time.Duration
}

// NewRedisSink constructs a RedisSink publishing onto the named stream. An
// empty addr selects the logging fallback; a non-empty addr dials a real
// Redis client.
func NewRedisSink[T any](addr, stream string) *RedisSink[T] {
	var s RedisStreamer
	if addr != "" {
		s = NewGoRedisStreamer(addr)
	} else {
		s = LoggingRedisStreamer{}
	}
	return &RedisSink[T]{streamer: s, stream: stream, field: "record", timeout: 5 * time.Second}
}

// Write publishes batch to the configured stream, one XADD per record. It
// stops at the first error.
func (s *RedisSink[T]) Write(batch []T) error {
	for i := range batch {
		b, err := json.Marshal(&batch[i])
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err = s.streamer.XAdd(ctx, s.stream, s.field, b)
		cancel()
		if err != nil {
			return fmt.Errorf("xadd stream=%s: %w", s.stream, err)
		}
	}
	return nil
}
