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

// Package partition routes an incoming event to the Engine replica that
// owns it. The preferred deployment gives each CPU its own window and
// synopses, keyed at construction, to eliminate contention entirely —
// no replica ever sees another replica's events. Router wraps rendezvous hashing
// (github.com/dgryski/go-rendezvous) rather than a plain modulo, so that if
// the replica count ever changes at startup (a CPU hot-added before attach,
// or an operator choosing a smaller replica count than NumCPU for a
// low-traffic deployment) the remapping of existing keys to replicas is
// minimal instead of total.
package partition

import (
	"strconv"

	"github.com/dgryski/go-rendezvous"

	"ebql/internal/errkind"
)

// Key is anything a caller wants sticky replica routing over — by default
// the event's CPU id, optionally a PID for experiments that want
// sticky-PID routing across a fixed replica count.
type Key interface {
	~uint32 | ~int32 | ~uint64 | ~int64
}

// Router maps a Key to one of a fixed set of replica indices [0, N).
type Router struct {
	n   int
	rdv *rendezvous.Rendezvous
}

func hashString(s string) uint64 {
	// FNV-1a.
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// NewRouter constructs a Router over replicaCount replicas, numbered
// "0".."replicaCount-1" as rendezvous nodes. replicaCount must be positive.
func NewRouter(replicaCount int) (*Router, error) {
	if replicaCount <= 0 {
		return nil, errkind.New(errkind.InvalidArg, "partition.NewRouter: replicaCount must be positive, got %d", replicaCount)
	}
	nodes := make([]string, replicaCount)
	for i := range nodes {
		nodes[i] = strconv.Itoa(i)
	}
	return &Router{n: replicaCount, rdv: rendezvous.New(nodes, hashString)}, nil
}

// Route returns the replica index owning key.
func Route[K Key](r *Router, key K) int {
	node := r.rdv.Lookup(strconv.FormatUint(uint64(key), 10))
	idx, _ := strconv.Atoi(node)
	return idx
}

// ReplicaCount returns the number of replicas this Router was built with.
func (r *Router) ReplicaCount() int { return r.n }
