package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"ebql/internal/errkind"
)

func TestRecordDropIncrementsLabeledCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "ebql_test")
	m.RecordDrop(errkind.BucketFull)
	m.RecordDrop(errkind.BucketFull)
	m.RecordDrop(errkind.MissingEntry)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "ebql_test_drops_total" {
			continue
		}
		found = true
		for _, metric := range mf.Metric {
			if labelValue(metric, "kind") == "BucketFull" && metric.GetCounter().GetValue() != 2 {
				t.Fatalf("BucketFull count = %v, want 2", metric.GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Fatalf("drops_total metric family not found")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDrop(errkind.BucketFull)
	m.ObserveBatch(3)
	m.SetWindowSize(5)
	m.SetSynopsisCardinality("distinct", 2)
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.Label {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
