// Package metrics exposes Prometheus collectors for pipeline runs.
//
// A nil *Collector is valid and records nothing, so callers never need to
// guard their instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run results reported under orb_runs_total.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector holds the pipeline metrics.
type Collector struct {
	runDuration *prometheus.HistogramVec
	features    prometheus.Gauge
	runs        *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orb_run_duration_seconds",
				Help:    "Wall time of one pipeline run, from recording to readback",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"pyramid", "compaction"},
		),
		features: f.NewGauge(prometheus.GaugeOpts{
			Name: "orb_features_detected",
			Help: "Number of features detected by the last successful run",
		}),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orb_runs_total",
				Help: "Pipeline runs by result",
			},
			[]string{"result"},
		),
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orb_stage_dispatches_total",
				Help: "Recorded dispatches, draws and copies by stage",
			},
			[]string{"stage"},
		),
	}
}

// ObserveRun records the outcome of one run.
func (c *Collector) ObserveRun(pyramid, compaction string, elapsed time.Duration, features uint32, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.runs.WithLabelValues(ResultError).Inc()
		return
	}
	c.runs.WithLabelValues(ResultOK).Inc()
	c.runDuration.WithLabelValues(pyramid, compaction).Observe(elapsed.Seconds())
	c.features.Set(float64(features))
}

// Dispatch counts one recorded step of a stage.
func (c *Collector) Dispatch(stage string) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(stage).Inc()
}
