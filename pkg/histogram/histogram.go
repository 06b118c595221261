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

// Package histogram implements a fixed-bucket count histogram supporting
// insert/delete and integer quantile queries by linear interpolation. No
// floating point is used anywhere on the hot path; quantiles are computed in
// fixed-point using FPScale and QuantileScale.
package histogram

import (
	"ebql/internal/errkind"
	"ebql/pkg/bitmath"
)

// FPScale is the fixed-point scale used for percentile accumulation.
const FPScale = 1_000_000

// QuantileScale equals FPScale/100: scaling a percentile q (0,100] into
// FPScale units, e.g. q=99 becomes 990_000.
const QuantileScale = FPScale / 100

// Bucket is one histogram slot. Buckets are sorted by Upper across the
// histogram.
type Bucket struct {
	Lower, Upper uint64
	Count        uint64
}

// Histogram is a fixed-array bucket histogram. Once constructed its bucket
// boundaries never change; only Count fields mutate.
type Histogram struct {
	buckets []Bucket
	total   uint64
	log     bool
}

// NewLinear constructs a histogram over the given explicit bucket bounds.
// bounds must be sorted by Upper and is copied; Count starts at zero in
// every bucket.
func NewLinear(bounds []Bucket) *Histogram {
	b := make([]Bucket, len(bounds))
	for i, x := range bounds {
		b[i] = Bucket{Lower: x.Lower, Upper: x.Upper}
	}
	return &Histogram{buckets: b}
}

// NewLogarithmic constructs a histogram of n buckets where bucket i covers
// values in [2^i, 2^(i+1)-1], except that bucket 0 also covers 0 and the
// last bucket extends to the maximum uint64. Bucket assignment uses
// Log2Uint64 directly rather than a linear scan.
func NewLogarithmic(n int) *Histogram {
	b := make([]Bucket, n)
	for i := range b {
		lower := uint64(0)
		if i > 0 {
			lower = uint64(1) << uint(i)
		}
		upper := (uint64(1) << uint(i+1)) - 1
		if i == n-1 {
			upper = ^uint64(0)
		}
		b[i] = Bucket{Lower: lower, Upper: upper}
	}
	return &Histogram{buckets: b, log: true}
}

// Buckets returns a read-only snapshot of the bucket definitions and counts.
func (h *Histogram) Buckets() []Bucket {
	out := make([]Bucket, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Count returns the total number of live samples across all buckets.
func (h *Histogram) Count() uint64 { return h.total }

// Reset zeros every bucket count and the running total, preserving bucket
// boundaries. Used by callers implementing the tumbling-window
// next-generation protocol for a synopsis kind (C2) that has no built-in
// Next table of its own.
func (h *Histogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Count = 0
	}
	h.total = 0
}

// LoadFrom replaces h's bucket counts with src's counts, assuming both were
// constructed with identical bucket boundaries. This is the clear-then-copy
// tumble operation applied to a histogram: clear h, then copy every bucket
// count of src into h.
func (h *Histogram) LoadFrom(src *Histogram) {
	h.Reset()
	for i := range h.buckets {
		if i < len(src.buckets) {
			h.buckets[i].Count = src.buckets[i].Count
		}
	}
	h.total = src.total
}

// bucketIndex returns the bucket slot value v maps to.
func (h *Histogram) bucketIndex(v uint64) int {
	n := len(h.buckets)
	if h.log {
		slot := bitmath.Log2Uint64(v)
		if slot >= uint64(n) {
			slot = uint64(n - 1)
		}
		return int(slot)
	}
	for i := 0; i < n; i++ {
		if h.buckets[i].Lower <= v && v <= h.buckets[i].Upper {
			return i
		}
	}
	return n - 1
}

// Insert adds one sample with value v to the histogram.
func (h *Histogram) Insert(v uint64) {
	i := h.bucketIndex(v)
	h.buckets[i].Count++
	h.total++
}

// Delete removes one sample with value v from the histogram. Deleting a
// value whose bucket count is already zero is a protocol violation (a
// synopsis was asked to delete something it never inserted) and returns
// BugCheck without mutating state.
func (h *Histogram) Delete(v uint64) error {
	i := h.bucketIndex(v)
	if h.buckets[i].Count == 0 || h.total == 0 {
		return errkind.New(errkind.BugCheck, "histogram delete would underflow bucket %d", i)
	}
	h.buckets[i].Count--
	h.total--
	return nil
}

// Quantile returns the integer value at percentile q, q in (0,100], using
// integer-only linear interpolation between adjacent bucket boundaries.
//
// Direction: for q >= 50 buckets are scanned from the top down accumulating
// tail mass; otherwise from the bottom up accumulating head mass. The first
// bucket whose inclusive running percentile reaches the target yields the
// result; an exact-boundary match returns Lower (top-down) or Upper
// (bottom-up) without interpolating.
func (h *Histogram) Quantile(q uint64) (uint64, error) {
	if q == 0 || q > 100 {
		return 0, errkind.New(errkind.InvalidArg, "q=%d must be in (0,100]", q)
	}
	total := h.total
	if total == 0 {
		return 0, errkind.New(errkind.Empty, "histogram has no samples")
	}

	scaledQ := q * QuantileScale
	n := len(h.buckets)

	if q >= 50 {
		var acc uint64
		prevPct := uint64(FPScale)
		for i := n - 1; i >= 0; i-- {
			acc += h.buckets[i].Count
			bPct := (FPScale * (total - acc)) / total
			// An empty bucket carries no mass: without this skip, q=100
			// would boundary-match an empty top bucket (bPct stays at
			// FPScale) and return its Lower instead of descending to the
			// top non-empty bucket.
			if h.buckets[i].Count == 0 {
				prevPct = bPct
				continue
			}
			if bPct <= scaledQ {
				lb, ub := h.buckets[i].Lower, h.buckets[i].Upper
				if bPct == scaledQ {
					return lb, nil
				}
				return lb + (ub-lb)*(scaledQ-bPct)/(prevPct-bPct), nil
			}
			prevPct = bPct
		}
	} else {
		var acc uint64
		prevPct := uint64(0)
		for i := 0; i < n; i++ {
			acc += h.buckets[i].Count
			bPct := (FPScale * acc) / total
			if bPct >= scaledQ {
				lb, ub := h.buckets[i].Lower, h.buckets[i].Upper
				if bPct == scaledQ {
					return ub, nil
				}
				return lb + (ub-lb)*(scaledQ-prevPct)/(bPct-prevPct), nil
			}
			prevPct = bPct
		}
	}
	return 0, errkind.New(errkind.InvalidArg, "quantile %d did not resolve to a bucket", q)
}
