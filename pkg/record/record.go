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

// Package record declares the schema-fixed event and result tuples the
// engine is specialized for. In production this schema would be emitted by
// a code generator from a query's declared field list; here it is a plain,
// fixed-layout Go struct standing in for that generator's output.
package record

// CommLen mirrors TASK_COMM_LEN: the kernel's fixed-size command-name
// buffer.
const CommLen = 16

// Event is a single-stream record as produced by Project from a raw
// tracepoint payload. Every field is a fixed-width integer or a fixed-length
// byte array; there are no pointers, slices, or variable-length fields, so a
// value of this type is safe to copy into circular buffers and synopsis
// tables without further allocation.
type Event struct {
	Time     uint64
	PFN      uint64
	Ino      uint64
	Count    uint64
	SDev     uint32
	PID      int32
	TGID     int32
	NSPID    int32
	CPU      uint32
	CgroupID uint64
	Comm     [CommLen]byte
}

// CommString returns Comm as a Go string, stopping at the first NUL byte.
func (e Event) CommString() string {
	for i, b := range e.Comm {
		if b == 0 {
			return string(e.Comm[:i])
		}
	}
	return string(e.Comm[:])
}

// JoinResult is the composed record produced by joining two Event streams on
// an equi-join key: the left side's fields followed by the right side's.
type JoinResult struct {
	PID        int32
	TimeL      uint64
	PFNL       uint64
	InoL       uint64
	CountL     uint64
	SDevL      uint32
	TGIDL      int32
	CommL      [CommLen]byte
	NSPIDL     int32
	TimeR      uint64
	FDR        uint64
	CountR     uint64
	TGIDR      int32
	CommR      [CommLen]byte
}

// JoinEvents composes a JoinResult from a matched (left, right) pair sharing
// PID as the equi-join key. Bounded, allocation-free.
func JoinEvents(left, right Event) JoinResult {
	return JoinResult{
		PID:    left.PID,
		TimeL:  left.Time,
		PFNL:   left.PFN,
		InoL:   left.Ino,
		CountL: left.Count,
		SDevL:  left.SDev,
		TGIDL:  left.TGID,
		CommL:  left.Comm,
		NSPIDL: left.NSPID,
		TimeR:  right.Time,
		FDR:    right.PFN, // FD reuses the PFN-shaped field of the right-side event
		CountR: right.Count,
		TGIDR:  right.TGID,
		CommR:  right.Comm,
	}
}

// KeyFunc extracts a comparable synopsis key from a record. Declared per
// query plan (see internal/engine.QueryPlan), not hard-coded, so the same
// generic synopsis types in pkg/distinct, pkg/avgtable, pkg/groupby, and
// pkg/joinbucket serve any field the plan names.
type KeyFunc[R any, K comparable] func(R) K

// ValueFunc extracts the unsigned integer value a numeric synopsis
// (histogram, average, group-by aggregate) aggregates over.
type ValueFunc[R any] func(R) uint64
