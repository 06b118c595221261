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

// Package errkind gives every recoverable failure mode in the engine a
// stable, switchable identity instead of an ad-hoc error string. The kinds
// and their handling policy come straight from the error-handling design:
// some are warn-and-continue, some abort the current event without further
// mutation, and BugCheck always means an invariant was violated.
package errkind

import "fmt"

// Kind identifies the category of a recoverable failure.
type Kind int

const (
	// BucketFull: join bucket, ring, or next-step buffer capacity exceeded.
	// Policy: warn, drop the offending record/result, continue.
	BucketFull Kind = iota
	// InvalidArg: quantile out of range, zero divisor, malformed tuple.
	// Policy: return error; log once per occurrence; continue.
	InvalidArg
	// MissingEntry: delete on an absent key. Policy: warn; no-op.
	MissingEntry
	// BugCheck: invariant violated (head >= capacity, size underflow, ...).
	// Policy: return a distinguished sentinel; abort the current event;
	// do not mutate state further.
	BugCheck
	// Unimplemented: configuration outside the supported subset (a
	// non-divisible step, a non-tumbling time window).
	// Policy: return error at attach or on first event.
	Unimplemented
	// RingReserveFail: ring buffer out of space. Policy: drop the whole
	// batch; increment a counter.
	RingReserveFail
	// HostHelperFail: a kernel helper returned negative. Policy: log;
	// best-effort continuation with a default value.
	HostHelperFail
	// Empty: a quantile (or other aggregate) was requested over zero
	// samples.
	Empty
)

func (k Kind) String() string {
	switch k {
	case BucketFull:
		return "BucketFull"
	case InvalidArg:
		return "InvalidArg"
	case MissingEntry:
		return "MissingEntry"
	case BugCheck:
		return "BugCheck"
	case Unimplemented:
		return "Unimplemented"
	case RingReserveFail:
		return "RingReserveFail"
	case HostHelperFail:
		return "HostHelperFail"
	case Empty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with free-form context. It is the only error type
// produced by the synopsis and window packages — callers that need to
// branch on failure category use Is, not string matching.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an *Error for the given Kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given Kind. Safe to call with a
// nil err.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
