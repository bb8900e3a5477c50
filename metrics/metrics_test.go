package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, label, value string) float64 {
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == label && l.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveRun("BlitBlur", "ChunkedScan", 3*time.Millisecond, 12, nil)
	c.ObserveRun("BlitBlur", "ChunkedScan", 5*time.Millisecond, 7, nil)
	c.ObserveRun("BlitBlur", "ChunkedScan", time.Millisecond, 0, errors.New("device lost"))

	got := gather(t, reg)
	if v := counterValue(got["orb_runs_total"], "result", ResultOK); v != 2 {
		t.Errorf("ok runs = %v, want 2", v)
	}
	if v := counterValue(got["orb_runs_total"], "result", ResultError); v != 1 {
		t.Errorf("error runs = %v, want 1", v)
	}
	if v := got["orb_features_detected"].GetMetric()[0].GetGauge().GetValue(); v != 7 {
		t.Errorf("features gauge = %v, want 7 (last successful run)", v)
	}
	h := got["orb_run_duration_seconds"].GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("duration samples = %d, want 2", h.GetSampleCount())
	}
}

func TestDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	for range 3 {
		c.Dispatch("CornerDetect")
	}
	c.Dispatch("Scatter")

	got := gather(t, reg)
	f := got["orb_stage_dispatches_total"]
	if v := counterValue(f, "stage", "CornerDetect"); v != 3 {
		t.Errorf("CornerDetect = %v, want 3", v)
	}
	if v := counterValue(f, "stage", "Scatter"); v != 1 {
		t.Errorf("Scatter = %v, want 1", v)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveRun("a", "b", time.Second, 1, nil)
	c.Dispatch("Grayscale")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("second New() on the same registerer did not panic")
		}
	}()
	New(reg)
}
