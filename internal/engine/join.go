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

package engine

import (
	"ebql/internal/errkind"
	"ebql/internal/ringbuf"
	"ebql/internal/telemetry"
	"ebql/pkg/joinbucket"
	"ebql/pkg/record"
	"ebql/pkg/window"
)

// JoinConfig declares a two-stream equi-join's shape. The join-bucket
// synopsis (pkg/joinbucket) has no general delete inverse beyond
// evict-oldest (see its Open Question on the off-by-two side of the
// original), so JoinEngine only ever constructs a CountSliding window pair:
// a tumbling join would need a next-generation bucket table this
// repository does not build, and NewJoinEngine takes no Kind to choose.
type JoinConfig struct {
	Capacity  int
	Step      int
	BucketCap int // per-key bucket depth, each side
	KeyCap    int // distinct key count, each side
	Key       func(record.Event) int32
	Compose   func(left, right record.Event) record.JoinResult
}

// JoinEngine runs the two-stream equi-join protocol over two independent
// CountSliding windows of record.Event, specialized (not generic):
// left/right and the composed JoinResult are concrete types, since a
// two-type-parameter variant would carry two independent synopsis sets with
// no shared structure to generalize over.
type JoinEngine struct {
	cfg     Config
	jcfg    JoinConfig
	logger  Logger
	metrics *telemetry.Metrics

	leftWin  *window.Window[record.Event]
	rightWin *window.Window[record.Event]

	leftBuckets  *joinbucket.BucketTable[int32, record.Event]
	rightBuckets *joinbucket.BucketTable[int32, record.Event]

	results *joinbucket.ResultRing[record.JoinResult]
	ring    *ringbuf.Ring[record.JoinResult]
}

// NewJoinEngine constructs a JoinEngine over two CountSliding windows of
// jcfg.Capacity/jcfg.Step.
func NewJoinEngine(jcfg JoinConfig, cfg Config, logger Logger, metrics *telemetry.Metrics) (*JoinEngine, error) {
	if jcfg.Key == nil {
		return nil, errkind.New(errkind.InvalidArg, "JoinConfig.Key is required")
	}
	compose := jcfg.Compose
	if compose == nil {
		compose = record.JoinEvents
	}
	jcfg.Compose = compose

	leftWin, err := window.New[record.Event](window.CountSliding, jcfg.Capacity, jcfg.Step, 0, nil)
	if err != nil {
		return nil, err
	}
	rightWin, err := window.New[record.Event](window.CountSliding, jcfg.Capacity, jcfg.Step, 0, nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewDefaultLogger(cfg.LogLevel)
	}

	return &JoinEngine{
		cfg: cfg, jcfg: jcfg, logger: logger, metrics: metrics,
		leftWin:      leftWin,
		rightWin:     rightWin,
		leftBuckets:  joinbucket.NewBucketTable[int32, record.Event](jcfg.BucketCap, jcfg.KeyCap),
		rightBuckets: joinbucket.NewBucketTable[int32, record.Event](jcfg.BucketCap, jcfg.KeyCap),
		results:      joinbucket.NewResultRing[record.JoinResult](jcfg.Capacity / 2),
		ring:         ringbuf.New[record.JoinResult](jcfg.Capacity),
	}, nil
}

// Results returns the engine's output ring of materialized join results.
func (j *JoinEngine) Results() *ringbuf.Ring[record.JoinResult] { return j.ring }

func (j *JoinEngine) drop(err error) {
	if err == nil {
		return
	}
	kind := errkind.BugCheck
	if ee, ok := err.(*errkind.Error); ok {
		kind = ee.Kind
	}
	j.logger.Warnf("join drop: %v", err)
	j.metrics.RecordDrop(kind)
}

// HandleLeft runs the protocol for an event on the left stream, probing the
// right side's bucket table for matches.
func (j *JoinEngine) HandleLeft(e record.Event) (dropped bool, err error) {
	return j.handle(true, e)
}

// HandleRight runs the protocol for an event on the right stream, probing
// the left side's bucket table for matches.
func (j *JoinEngine) HandleRight(e record.Event) (dropped bool, err error) {
	return j.handle(false, e)
}

func (j *JoinEngine) handle(isLeft bool, e record.Event) (dropped bool, err error) {
	win, buckets, other := j.rightWin, j.rightBuckets, j.leftBuckets
	if isLeft {
		win, buckets, other = j.leftWin, j.leftBuckets, j.rightBuckets
	}

	code, addErr := win.Add(e)
	if addErr != nil {
		j.drop(addErr)
		if isFatal(addErr) {
			return true, addErr
		}
		return true, nil
	}

	key := j.jcfg.Key(e)
	if err := buckets.Insert(key, e); err != nil {
		j.drop(err)
		dropped = true
	}
	other.Probe(key, func(match record.Event) {
		var res record.JoinResult
		if isLeft {
			res = j.jcfg.Compose(e, match)
		} else {
			res = j.jcfg.Compose(match, e)
		}
		if err := j.results.Push(res); err != nil {
			j.drop(err)
		}
	})

	if code <= window.CodeBuffered {
		return dropped, nil
	}

	if err := j.expire(win, buckets, code); err != nil {
		j.drop(err)
		if isFatal(err) {
			return true, err
		}
		dropped = true
	}
	if _, err := win.Flush(); err != nil {
		j.drop(err)
		return true, err
	}

	j.publish()
	return dropped, nil
}

// expire evicts the k oldest live records of win from buckets, mirroring
// Engine.expireSynopses for the single-stream case.
func (j *JoinEngine) expire(win *window.Window[record.Event], buckets *joinbucket.BucketTable[int32, record.Event], k int) error {
	it, err := win.ExpiredIter(k)
	if err != nil {
		return err
	}
	var firstErr error
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if err := buckets.Delete(j.jcfg.Key(e)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (j *JoinEngine) publish() {
	n := j.results.Len()
	if n == 0 {
		return
	}
	batch := make([]record.JoinResult, n)
	n = j.results.Drain(batch)
	scratch, err := j.ring.Reserve(n)
	if err != nil {
		j.drop(err)
		return
	}
	copy(scratch, batch[:len(scratch)])
	j.ring.Submit(scratch)
	if j.metrics != nil {
		j.metrics.ObserveBatch(len(scratch))
	}
}
