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
	"ebql/pkg/distinct"
	"ebql/pkg/distinctjoin"
	"ebql/pkg/record"
	"ebql/pkg/window"
)

// DistinctJoinConfig declares a two-stream distinct-join's shape: each side
// keeps only its latest record per key (a distinct synopsis), and on step the
// two live tables are joined key-for-key. Because each side holds at most one
// live record per key, the match count is known before any output is written —
// which is why the recompute counts first and materializes second, sizing the
// output exactly.
type DistinctJoinConfig struct {
	Capacity int
	Step     int
	LeftKey  func(record.Event) uint64
	RightKey func(record.Event) uint64
	Compose  func(left, right record.Event) record.JoinResult
}

// DistinctJoinEngine runs the distinct-join protocol over two independent
// tumbling windows of record.Event. Unlike JoinEngine (hash buckets,
// sliding-only), the distinct synopsis carries a built-in next-generation
// shadow, so this engine is tumbling-only: each side's step replaces that
// side's live table wholesale before the join recomputes.
type DistinctJoinEngine struct {
	cfg     Config
	djcfg   DistinctJoinConfig
	logger  Logger
	metrics *telemetry.Metrics

	leftWin  *window.Window[record.Event]
	rightWin *window.Window[record.Event]

	left  *distinct.Table[uint64, record.Event]
	right *distinct.Table[uint64, record.Event]

	ring *ringbuf.Ring[record.JoinResult]
}

// NewDistinctJoinEngine constructs a DistinctJoinEngine over two
// CountTumbling windows of djcfg.Capacity/djcfg.Step.
func NewDistinctJoinEngine(djcfg DistinctJoinConfig, cfg Config, logger Logger, metrics *telemetry.Metrics) (*DistinctJoinEngine, error) {
	if djcfg.LeftKey == nil || djcfg.RightKey == nil {
		return nil, errkind.New(errkind.InvalidArg, "DistinctJoinConfig.LeftKey and RightKey are required")
	}
	compose := djcfg.Compose
	if compose == nil {
		compose = record.JoinEvents
	}
	djcfg.Compose = compose

	leftWin, err := window.New[record.Event](window.CountTumbling, djcfg.Capacity, djcfg.Step, 0, nil)
	if err != nil {
		return nil, err
	}
	rightWin, err := window.New[record.Event](window.CountTumbling, djcfg.Capacity, djcfg.Step, 0, nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewDefaultLogger(cfg.LogLevel)
	}

	return &DistinctJoinEngine{
		cfg: cfg, djcfg: djcfg, logger: logger, metrics: metrics,
		leftWin:  leftWin,
		rightWin: rightWin,
		left:     distinct.New[uint64, record.Event](djcfg.Capacity, true),
		right:    distinct.New[uint64, record.Event](djcfg.Capacity, true),
		ring:     ringbuf.New[record.JoinResult](djcfg.Capacity),
	}, nil
}

// Results returns the engine's output ring of materialized join results.
func (d *DistinctJoinEngine) Results() *ringbuf.Ring[record.JoinResult] { return d.ring }

func (d *DistinctJoinEngine) drop(err error) {
	if err == nil {
		return
	}
	kind := errkind.BugCheck
	if ee, ok := err.(*errkind.Error); ok {
		kind = ee.Kind
	}
	d.logger.Warnf("distinct-join drop: %v", err)
	d.metrics.RecordDrop(kind)
}

// HandleLeft runs the protocol for an event on the left stream.
func (d *DistinctJoinEngine) HandleLeft(e record.Event) (dropped bool, err error) {
	return d.handle(true, e)
}

// HandleRight runs the protocol for an event on the right stream.
func (d *DistinctJoinEngine) HandleRight(e record.Event) (dropped bool, err error) {
	return d.handle(false, e)
}

func (d *DistinctJoinEngine) handle(isLeft bool, e record.Event) (dropped bool, err error) {
	win, tbl, key := d.rightWin, d.right, d.djcfg.RightKey
	if isLeft {
		win, tbl, key = d.leftWin, d.left, d.djcfg.LeftKey
	}

	code, addErr := win.Add(e)
	if addErr != nil {
		d.drop(addErr)
		if isFatal(addErr) {
			return true, addErr
		}
		return true, nil
	}

	k := key(e)
	if code == window.CodeInserted {
		if err := tbl.Insert(k, e); err != nil {
			d.drop(err)
			dropped = true
		}
	} else {
		if err := tbl.InsertNext(k, e); err != nil {
			d.drop(err)
			dropped = true
		}
	}

	if code <= window.CodeBuffered {
		return dropped, nil
	}

	tbl.Tumble()
	if _, err := win.Flush(); err != nil {
		d.drop(err)
		return true, err
	}

	d.recomputeAndPublish()
	return dropped, nil
}

// recomputeAndPublish counts the key-matched pairs across both live tables,
// reserves exactly that many ring slots, and materializes the joined records
// into them. Counting first means the reservation is exact, never a guess.
// An empty match set publishes nothing.
func (d *DistinctJoinEngine) recomputeAndPublish() {
	n := distinctjoin.Count(d.left, d.right)
	if d.metrics != nil {
		d.metrics.SetSynopsisCardinality("distinct_join_left", d.left.Len())
		d.metrics.SetSynopsisCardinality("distinct_join_right", d.right.Len())
	}
	if n == 0 {
		return
	}

	scratch, err := d.ring.Reserve(n)
	if err != nil {
		d.drop(err)
		return
	}
	written, merr := distinctjoin.Materialize(d.left, d.right, d.djcfg.Compose, scratch)
	if merr != nil {
		d.drop(merr)
	}
	d.ring.Submit(scratch[:written])
	if d.metrics != nil {
		d.metrics.ObserveBatch(written)
	}
}
