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
	"ebql/pkg/avgtable"
	"ebql/pkg/distinct"
	"ebql/pkg/groupby"
	"ebql/pkg/histogram"
	"ebql/pkg/window"
)

// QueryPlan declares which synopses an Engine[R] wires for a given query: a
// query is "compiled" by constructing an Engine with a plan, not by code
// generation. All synopsis keys are canonicalized to uint64 (every
// candidate key field in record.Event is a fixed-width integer no wider
// than 64 bits); only the value type carried by the distinct synopsis is
// R-generic. See DESIGN.md for why this is enough generality without
// threading a separate key type parameter per synopsis through Engine
// itself.
type QueryPlan[R any] struct {
	// Filter rejects a record before it reaches the window. nil accepts
	// everything.
	Filter func(R) bool
	// MapFn applies an arithmetic transform (e.g. ns -> ms) before the
	// window sees the record. nil is the identity.
	MapFn func(R) R
	// PIDOf extracts a record's pid for Config.TargetPID filtering. Only
	// consulted when Config.TargetPID != 0.
	PIDOf func(R) int32

	// HistogramValue enables the quantile histogram synopsis when non-nil.
	HistogramValue func(R) uint64
	// HistogramBounds selects linear bucketing; nil selects logarithmic
	// bucketing over HistogramLogBuckets buckets.
	HistogramBounds     []histogram.Bucket
	HistogramLogBuckets int
	// Quantiles lists the percentiles computed at every step.
	Quantiles []uint64

	// AvgKey/AvgValue enable the running-average synopsis when both are set.
	AvgKey   func(R) uint64
	AvgValue func(R) uint64

	// DistinctKey enables the distinct-table synopsis when non-nil.
	DistinctKey func(R) uint64

	// GroupByKey/GroupByValue/GroupByOp enable the group-by synopsis when
	// GroupByKey is non-nil. Group-by has no general delete (MIN/MAX have
	// no inverse), so it is tumbling-only: constructing an Engine with
	// GroupByKey set over a CountSliding window fails with Unimplemented.
	GroupByKey     func(R) uint64
	GroupByValue   func(R) uint64
	GroupByOp      groupby.Op
	GroupByScanCap int
}

// AvgRow is one materialized average-synopsis result row.
type AvgRow struct {
	Key   uint64
	Mean  uint64
	Count uint64
}

// DistinctRow is one materialized distinct-synopsis result row.
type DistinctRow[R any] struct {
	Key   uint64
	Value R
}

// Snapshot is the recomputed, step-triggered query result: whichever of
// quantiles / averages / distinct rows / group-by rows the QueryPlan wired.
// Engine publishes one Snapshot per step to its Ring.
type Snapshot[R any] struct {
	WindowSize int
	Quantiles  map[uint64]uint64
	Avg        []AvgRow
	Distinct   []DistinctRow[R]
	GroupBy    []groupby.Row[uint64]
}

// Engine orchestrates the full incremental protocol for a single record
// stream over a single Window.
type Engine[R any] struct {
	cfg     Config
	plan    QueryPlan[R]
	logger  Logger
	metrics *telemetry.Metrics

	win *window.Window[R]

	hist     *histogram.Histogram
	histNext *histogram.Histogram // tumbling only

	avg *avgtable.Table[uint64]

	distinctTbl *distinct.Table[uint64, R]

	group *groupby.Table[uint64]

	ring    *ringbuf.Ring[Snapshot[R]]
	pending []Snapshot[R] // staged when cfg.BatchProcess is true
}

// New constructs an Engine over a window of the given kind/capacity/step
// (and, for TimeTumbling, interval/timeOf — see pkg/window.New) wired per
// plan.
func New[R any](kind window.Kind, capacity, step int, interval uint64, timeOf func(R) uint64, cfg Config, plan QueryPlan[R], logger Logger, metrics *telemetry.Metrics) (*Engine[R], error) {
	if plan.GroupByKey != nil && kind == window.CountSliding {
		return nil, errkind.New(errkind.Unimplemented, "group-by synopsis requires a tumbling window")
	}
	win, err := window.New[R](kind, capacity, step, interval, timeOf)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewDefaultLogger(cfg.LogLevel)
	}

	e := &Engine[R]{
		cfg: cfg, plan: plan, win: win, logger: logger, metrics: metrics,
		ring: ringbuf.New[Snapshot[R]](capacity),
	}

	tumbling := kind != window.CountSliding

	if plan.HistogramValue != nil {
		e.hist = newHistogram(plan)
		if tumbling {
			e.histNext = newHistogram(plan)
		}
	}
	if plan.AvgKey != nil && plan.AvgValue != nil {
		e.avg = avgtable.New[uint64](capacity, tumbling)
	}
	if plan.DistinctKey != nil {
		e.distinctTbl = distinct.New[uint64, R](capacity, tumbling)
	}
	if plan.GroupByKey != nil {
		e.group = groupby.New[uint64](plan.GroupByOp, capacity, true)
	}
	return e, nil
}

func newHistogram[R any](plan QueryPlan[R]) *histogram.Histogram {
	if plan.HistogramBounds != nil {
		return histogram.NewLinear(plan.HistogramBounds)
	}
	return histogram.NewLogarithmic(plan.HistogramLogBuckets)
}

// Ring returns the engine's output ring buffer of published Snapshots.
func (e *Engine[R]) Ring() *ringbuf.Ring[Snapshot[R]] { return e.ring }

func (e *Engine[R]) drop(err error) {
	if err == nil {
		return
	}
	kind := errkind.BugCheck
	if ee, ok := err.(*errkind.Error); ok {
		kind = ee.Kind
	}
	e.logger.Warnf("drop: %v", err)
	e.metrics.RecordDrop(kind)
}

func isFatal(err error) bool {
	return errkind.Is(err, errkind.BugCheck) || errkind.Is(err, errkind.Unimplemented)
}

// Handle runs the full per-event protocol: filter, map, window.Add,
// synopsis update at the generation the return code selects, and — when a
// step fires — expire-or-tumble, flush, recompute, publish. It returns
// dropped=true whenever the event did not fully land (filtered, or any
// warn-and-continue error occurred) and a non-nil err only for the
// irrecoverable BugCheck/Unimplemented kinds; a recoverable condition never
// surfaces as an error the caller has to branch on.
func (e *Engine[R]) Handle(r R) (dropped bool, err error) {
	if e.plan.PIDOf != nil && e.cfg.TargetPID != 0 && e.plan.PIDOf(r) != e.cfg.TargetPID {
		return true, nil
	}
	if e.plan.Filter != nil && !e.plan.Filter(r) {
		return true, nil
	}
	if e.plan.MapFn != nil {
		r = e.plan.MapFn(r)
	}

	code, addErr := e.win.Add(r)
	if addErr != nil {
		e.drop(addErr)
		if isFatal(addErr) {
			return true, addErr
		}
		return true, nil
	}

	tumbling := e.win.Kind() != window.CountSliding
	insertNext := code != window.CodeInserted && tumbling

	if err := e.insertSynopses(r, insertNext); err != nil {
		e.drop(err)
		dropped = true
	}

	if code <= window.CodeBuffered {
		return dropped, nil
	}

	// Step fired: code is the number of entries Flush retires — the step
	// for count windows, the whole live size for time windows.
	if tumbling {
		e.tumbleSynopses()
	} else if err := e.expireSynopses(code); err != nil {
		e.drop(err)
		if isFatal(err) {
			return true, err
		}
		dropped = true
	}

	if _, err := e.win.Flush(); err != nil {
		e.drop(err)
		return true, err
	}

	e.recomputeAndPublish()
	return dropped, nil
}

// insertSynopses folds r into the live (next == false) or next-generation
// (next == true) synopses.
func (e *Engine[R]) insertSynopses(r R, next bool) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.hist != nil {
		v := e.plan.HistogramValue(r)
		if next {
			e.histNext.Insert(v)
		} else {
			e.hist.Insert(v)
		}
	}
	if e.avg != nil {
		k, v := e.plan.AvgKey(r), e.plan.AvgValue(r)
		if next {
			note(e.avg.InsertNext(k, v))
		} else {
			note(e.avg.Insert(k, v))
		}
	}
	if e.distinctTbl != nil {
		k := e.plan.DistinctKey(r)
		if next {
			note(e.distinctTbl.InsertNext(k, r))
		} else {
			note(e.distinctTbl.Insert(k, r))
		}
	}
	if e.group != nil {
		// Group-by is tumbling-only (enforced at construction), so it
		// follows the same live/next split as the other tumbling
		// synopses: direct inserts accumulate live, next-buffered ones
		// accumulate in the next generation until the tumble swaps them in.
		k, v := e.plan.GroupByKey(r), e.plan.GroupByValue(r)
		if next {
			note(e.group.InsertNext(k, v))
		} else {
			note(e.group.Insert(k, v))
		}
	}
	return firstErr
}

// tumbleSynopses replaces every wired synopsis's live state with its
// next-generation state (clear-then-copy), extended uniformly to the
// histogram via Histogram.LoadFrom.
func (e *Engine[R]) tumbleSynopses() {
	if e.hist != nil {
		e.hist.LoadFrom(e.histNext)
		e.histNext.Reset()
	}
	if e.avg != nil {
		e.avg.Tumble()
	}
	if e.distinctTbl != nil {
		e.distinctTbl.Tumble()
	}
	if e.group != nil {
		e.group.Tumble()
	}
}

// expireSynopses deletes the k oldest live records from every wired
// synopsis, for a sliding window's step. It must be called before Flush,
// since Flush overwrites the expiring range.
func (e *Engine[R]) expireSynopses(k int) error {
	it, err := e.win.ExpiredIter(k)
	if err != nil {
		return err
	}
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		if e.hist != nil {
			note(e.hist.Delete(e.plan.HistogramValue(r)))
		}
		if e.avg != nil {
			note(e.avg.Delete(e.plan.AvgKey(r), e.plan.AvgValue(r)))
		}
		if e.distinctTbl != nil {
			note(e.distinctTbl.Delete(e.plan.DistinctKey(r)))
		}
	}
	return firstErr
}

// recomputeAndPublish builds a Snapshot from the now-consistent live
// synopses and publishes it, honoring Config.BatchProcess: when false,
// each step's snapshot is reserved and submitted immediately; when true,
// snapshots accumulate until the caller drains them with PublishPending.
func (e *Engine[R]) recomputeAndPublish() {
	snap := Snapshot[R]{WindowSize: e.win.Size()}

	if e.hist != nil && len(e.plan.Quantiles) > 0 {
		snap.Quantiles = make(map[uint64]uint64, len(e.plan.Quantiles))
		for _, q := range e.plan.Quantiles {
			v, err := e.hist.Quantile(q)
			if err != nil {
				e.drop(err)
				continue
			}
			snap.Quantiles[q] = v
		}
	}
	if e.avg != nil {
		e.avg.Scan(func(k uint64, c avgtable.Cell) {
			snap.Avg = append(snap.Avg, AvgRow{Key: k, Mean: c.Mean(), Count: c.Count})
		})
	}
	if e.distinctTbl != nil {
		e.distinctTbl.Scan(func(k uint64, v R) {
			snap.Distinct = append(snap.Distinct, DistinctRow[R]{Key: k, Value: v})
		})
	}
	if e.group != nil {
		scanCap := e.plan.GroupByScanCap
		if scanCap <= 0 {
			scanCap = e.group.Len()
		}
		buf := make([]groupby.Row[uint64], scanCap)
		n, truncated := e.group.Scan(buf)
		snap.GroupBy = buf[:n]
		if truncated {
			e.drop(errkind.New(errkind.BucketFull, "group-by scan truncated at %d", scanCap))
		}
	}

	if e.metrics != nil {
		e.metrics.SetWindowSize(snap.WindowSize)
		if e.avg != nil {
			e.metrics.SetSynopsisCardinality("avg", e.avg.Len())
		}
		if e.distinctTbl != nil {
			e.metrics.SetSynopsisCardinality("distinct", e.distinctTbl.Len())
		}
		if e.group != nil {
			e.metrics.SetSynopsisCardinality("groupby", e.group.Len())
		}
	}

	if e.cfg.BatchProcess {
		e.pending = append(e.pending, snap)
		return
	}
	e.publish([]Snapshot[R]{snap})
}

func (e *Engine[R]) publish(snaps []Snapshot[R]) {
	scratch, err := e.ring.Reserve(len(snaps))
	if err != nil {
		e.drop(err)
		return
	}
	copy(scratch, snaps[:len(scratch)])
	e.ring.Submit(scratch)
	if e.metrics != nil {
		e.metrics.ObserveBatch(len(scratch))
	}
}

// PublishPending flushes any snapshots accumulated while Config.BatchProcess
// is true. A no-op if nothing is pending.
func (e *Engine[R]) PublishPending() {
	if len(e.pending) == 0 {
		return
	}
	e.publish(e.pending)
	e.pending = e.pending[:0]
}
