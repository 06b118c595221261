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

// Package distinctjoin implements the nested-loop join of two distinct
// synopses: count the matches first to size the output, then materialize.
// There is no bucket structure here (unlike pkg/joinbucket) because each
// side already holds at most one live record per key.
package distinctjoin

import (
	"ebql/internal/errkind"
	"ebql/pkg/distinct"
)

// ComposeFunc builds a joined record out of a matched (left, right) pair.
type ComposeFunc[L, R, Out any] func(L, R) Out

// Count returns the number of keys present in both left and right, by
// iterating the left side and probing the right side per entry. This always
// iterates the left table; it does not attempt to pick the smaller side
// (see DESIGN.md).
func Count[K comparable, L, R any](left *distinct.Table[K, L], right *distinct.Table[K, R]) int {
	n := 0
	left.Scan(func(k K, _ L) {
		if _, ok := right.Get(k); ok {
			n++
		}
	})
	return n
}

// Materialize writes up to len(out) joined records into out, composing each
// matched (left, right) pair with compose. It returns the number of records
// written, and a BucketFull error when the match set was truncated (more
// matches existed than len(out)). Callers should size out with Count first to avoid
// truncation; truncation is reported, not hidden, matching the
// BucketFull/overflow-warn policy used elsewhere.
func Materialize[K comparable, L, R, Out any](left *distinct.Table[K, L], right *distinct.Table[K, R], compose ComposeFunc[L, R, Out], out []Out) (n int, err error) {
	truncated := false
	left.Scan(func(k K, lv L) {
		if truncated {
			return
		}
		rv, ok := right.Get(k)
		if !ok {
			return
		}
		if n >= len(out) {
			truncated = true
			return
		}
		out[n] = compose(lv, rv)
		n++
	})
	if truncated {
		return n, errkind.New(errkind.BucketFull, "distinct-join materialize truncated at %d", len(out))
	}
	return n, nil
}
