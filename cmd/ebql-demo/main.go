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

// ebql-demo is a synthetic traffic generator and soak tool for the
// streaming query engine in internal/engine. It produces a stream of
// synthetic page-fault-like events across a configurable number of CPUs and
// processes, routes each event to the Engine replica that owns its CPU
// (internal/partition), and persists emitted snapshots to a JSONL file and a
// Redis stream. It exposes Prometheus metrics so the windowing and synopsis
// behavior can be observed under load.
//
// Usage (quick start):
//
//	go run ./cmd/ebql-demo -capacity 256 -step 64 -qps 5000 -pids 200 \
//	    -cpus 8 -out snapshots.log -http :8081
package main

import (
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ebql/internal/engine"
	"ebql/internal/partition"
	"ebql/internal/sinks"
	"ebql/internal/telemetry"
	"ebql/pkg/histogram"
	"ebql/pkg/record"
	"ebql/pkg/window"
)

type snapshotSink = sinks.Sink[engine.Snapshot[record.Event]]

// synthHost is the demo's stand-in for the six kernel helpers behind
// engine.HostHelpers. The generator loop sets pid/cpu per event before
// projecting; the monotonic clock advances by a random stride so time-based
// fields look plausibly kernel-shaped.
type synthHost struct {
	rng  *rand.Rand
	pid  int32
	cpu  uint32
	tick uint64
}

func (h *synthHost) MonotonicNanos() uint64 {
	h.tick += uint64(h.rng.Intn(200_000) + 1)
	return h.tick
}
func (h *synthHost) PidTgid() (pid, tgid int32) { return h.pid, h.pid }
func (h *synthHost) Comm() string               { return "ebql-demo" }
func (h *synthHost) CPU() uint32                { return h.cpu }
func (h *synthHost) CgroupID() uint64           { return 1 }
func (h *synthHost) NSPID() int32               { return h.pid }

// project builds a fully enriched record.Event from the host helpers plus
// the raw per-event payload (here, a synthetic fault count) — the demo's
// version of the probe handler's project/enrich step.
func project(h engine.HostHelpers, count uint64) record.Event {
	pid, tgid := h.PidTgid()
	e := record.Event{
		Time:     h.MonotonicNanos(),
		Count:    count,
		PID:      pid,
		TGID:     tgid,
		NSPID:    h.NSPID(),
		CPU:      h.CPU(),
		CgroupID: h.CgroupID(),
	}
	copy(e.Comm[:], h.Comm())
	return e
}

func main() {
	capacity := flag.Int("capacity", 256, "per-replica window capacity N")
	step := flag.Int("step", 64, "window step S")
	sliding := flag.Bool("sliding", false, "use a sliding window instead of tumbling")
	qps := flag.Int("qps", 5000, "synthetic events per second")
	pids := flag.Int("pids", 200, "distinct synthetic pids")
	cpus := flag.Int("cpus", 4, "number of Engine replicas, one per simulated CPU")
	duration := flag.Duration("duration", 30*time.Second, "run duration; 0 for forever")
	outPath := flag.String("out", "snapshots.log", "snapshot JSONL output path")
	drainEvery := flag.Duration("drain_every", 50*time.Millisecond, "how often replica rings are drained into the sinks")
	redisAddr := flag.String("redis", "", "Redis address for the stream sink; empty uses a logging fallback")
	redisStream := flag.String("redis_stream", "ebql-snapshots", "Redis stream name")
	httpAddr := flag.String("http", ":8081", "HTTP listen address for /metrics")
	flag.Parse()

	if *capacity <= 0 {
		*capacity = 256
	}
	if *step <= 0 || *capacity%*step != 0 {
		log.Fatalf("capacity %d must be a positive multiple of step %d", *capacity, *step)
	}
	if *qps <= 0 {
		*qps = 5000
	}
	if *pids <= 0 {
		*pids = 200
	}
	if *cpus <= 0 {
		*cpus = 4
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg, "ebql_demo")

	router, err := partition.NewRouter(*cpus)
	if err != nil {
		log.Fatalf("partition.NewRouter: %v", err)
	}

	kind := window.CountTumbling
	if *sliding {
		kind = window.CountSliding
	}
	plan := engine.QueryPlan[record.Event]{
		HistogramValue: func(e record.Event) uint64 { return e.Count },
		HistogramBounds: []histogram.Bucket{
			{Lower: 0, Upper: 63},
			{Lower: 64, Upper: 255},
			{Lower: 256, Upper: 1023},
			{Lower: 1024, Upper: ^uint64(0)},
		},
		Quantiles: []uint64{50, 99},
	}

	replicas := make([]*engine.Engine[record.Event], router.ReplicaCount())
	for i := range replicas {
		eng, err := engine.New[record.Event](kind, *capacity, *step, 0, nil, engine.Config{}, plan, nil, metrics)
		if err != nil {
			log.Fatalf("engine.New(replica %d): %v", i, err)
		}
		replicas[i] = eng
	}

	if *drainEvery <= 0 {
		*drainEvery = 50 * time.Millisecond
	}
	// The file sink flushes from a drain's Write once a drain period has
	// passed since its last flush, and on Close.
	fileSink, err := sinks.NewFileSink[engine.Snapshot[record.Event]](*outPath, *drainEvery)
	if err != nil {
		log.Fatalf("open snapshot sink: %v", err)
	}
	defer fileSink.Close()
	redisSink := sinks.NewRedisSink[engine.Snapshot[record.Event]](*redisAddr, *redisStream)

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Printf("ebql-demo listening on %s (%d replicas)", *httpAddr, len(replicas))
		if err := http.ListenAndServe(*httpAddr, nil); err != nil {
			log.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan struct{})
	go generate(replicas, router, fileSink, redisSink, *qps, *pids, *cpus, *drainEvery, stop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var endTimer <-chan time.Time
	if *duration > 0 {
		endTimer = time.After(*duration)
	}
	select {
	case <-sigCh:
	case <-endTimer:
	}
	close(stop)
	time.Sleep(200 * time.Millisecond)
}

// generate produces synthetic events, routes each to the replica owning its
// simulated CPU, and drains every replica's output ring on a fixed tick.
func generate(replicas []*engine.Engine[record.Event], router *partition.Router, fileSink, redisSink snapshotSink, qps, pids, numCPUs int, drainEvery time.Duration, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(1))
	host := &synthHost{rng: rng}
	interval := time.Second / time.Duration(qps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	drainTicker := time.NewTicker(drainEvery)
	defer drainTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			host.cpu = uint32(rng.Intn(numCPUs))
			host.pid = int32(rng.Intn(pids))
			e := project(host, uint64(rng.Intn(2048)))
			replica := replicas[partition.Route(router, host.cpu)]
			if _, err := replica.Handle(e); err != nil {
				log.Printf("engine.Handle: %v", err)
			}
		case <-drainTicker.C:
			for _, eng := range replicas {
				drain(eng, fileSink, redisSink)
			}
		}
	}
}

func drain(eng *engine.Engine[record.Event], fileSink, redisSink snapshotSink) {
	batch := eng.Ring().Peek()
	if batch.Count == 0 {
		return
	}
	if err := fileSink.Write(batch.Records); err != nil {
		log.Printf("file sink write: %v", err)
	}
	if err := redisSink.Write(batch.Records); err != nil {
		log.Printf("redis sink write: %v", err)
	}
	eng.Ring().Release(len(batch.Records))
}
