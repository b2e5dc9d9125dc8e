// Package observability records Prometheus metrics for inference and
// balancing runs. Each process owns one registry; the CLI can dump it to a
// text file at exit for node_exporter's textfile collector.
package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder publishes run metrics. A nil *Recorder discards everything.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	subjects   prometheus.Gauge
	meanError  *prometheus.GaugeVec
	removed    *prometheus.CounterVec
}

// NewRecorder registers the normative_* collectors on a fresh registry.
// withRuntime adds the Go runtime and process collectors.
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "normative_operations_total",
			Help: "Completed operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "normative_operation_duration_seconds",
			Help:    "Operation wall time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"operation"}),
		subjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "normative_replica_subjects",
			Help: "Subjects scored by the most recent replica.",
		}),
		meanError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "normative_replica_mean_reconstruction_error",
			Help: "Mean reconstruction error per replica.",
		}, []string{"replica"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "normative_balance_removed_total",
			Help: "Subjects removed while balancing, by diagnostic group.",
		}, []string{"group"}),
	}
	r.registry.MustRegister(r.operations, r.durations, r.subjects, r.meanError, r.removed)
	if withRuntime {
		r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

// Registry exposes the underlying registry as a Gatherer.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Observe records an operation outcome and its duration.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if r == nil || operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Replica records the size and mean error of a finished replica.
func (r *Recorder) Replica(replica, subjects int, meanError float64) {
	if r == nil {
		return
	}
	r.subjects.Set(float64(subjects))
	r.meanError.WithLabelValues(strconv.Itoa(replica)).Set(meanError)
}

// Removed counts subjects trimmed from group.
func (r *Recorder) Removed(group string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.removed.WithLabelValues(group).Add(float64(n))
}

// WriteTextfile writes the registry in text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
