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

// Package telemetry exposes the engine's drop counters and window/synopsis
// gauges as Prometheus metrics. Dropped events and batches surface only
// here: the hot path never blocks on a failed emission, it bumps the
// per-reason counter and moves on, so a registry scrape is the one place an
// operator can see loss. Gauges are updated off the hot path, at step
// boundaries.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"ebql/internal/errkind"
)

// Metrics bundles every Prometheus collector the engine updates. Construct
// one per Engine, or share one across per-CPU replicas (their updates then
// land on the same unlabeled series); New registers it with a
// prometheus.Registerer.
type Metrics struct {
	drops      *prometheus.CounterVec
	batchSize  prometheus.Histogram
	windowSize prometheus.Gauge
	synopsisN  *prometheus.GaugeVec
}

// New constructs a Metrics bundle with the given namespace (e.g. "ebql")
// and registers its collectors with reg. reg may be prometheus.NewRegistry()
// for isolated tests, or prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_total",
			Help:      "Total events or batches dropped, labeled by error kind.",
		}, []string{"kind"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ring_batch_size",
			Help:      "Distribution of result-batch sizes published to the ring buffer.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		windowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_size",
			Help:      "Current number of live records in the window's main buffer.",
		}),
		synopsisN: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synopsis_cardinality",
			Help:      "Live key count per synopsis, labeled by synopsis name.",
		}, []string{"synopsis"}),
	}
	reg.MustRegister(m.drops, m.batchSize, m.windowSize, m.synopsisN)
	return m
}

// RecordDrop increments the drop counter for the given error kind. Safe to
// call with any errkind.Kind, including ones with a warn-and-continue
// policy — the counter exists precisely so those are still observable.
func (m *Metrics) RecordDrop(k errkind.Kind) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(k.String()).Inc()
}

// ObserveBatch records the size of a batch published to the ring buffer.
func (m *Metrics) ObserveBatch(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchSize.Observe(float64(n))
}

// SetWindowSize updates the current window-size gauge.
func (m *Metrics) SetWindowSize(n int) {
	if m == nil {
		return
	}
	m.windowSize.Set(float64(n))
}

// SetSynopsisCardinality updates the live-key-count gauge for a named
// synopsis (e.g. "distinct", "groupby", "avg").
func (m *Metrics) SetSynopsisCardinality(name string, n int) {
	if m == nil {
		return
	}
	m.synopsisN.WithLabelValues(name).Set(float64(n))
}
