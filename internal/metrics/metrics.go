// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	// OperationsTotal counts engine operations by name and result code.
	OperationsTotal *prometheus.CounterVec

	// OperationDuration observes operation latency by name.
	OperationDuration *prometheus.HistogramVec

	// GCRunsTotal counts garbage collection runs.
	GCRunsTotal prometheus.Counter

	// GCBlobsDeleted counts blobs removed by garbage collection.
	GCBlobsDeleted prometheus.Counter

	// GCBytesFreed counts bytes freed by garbage collection.
	GCBytesFreed prometheus.Counter

	// GCDuration observes garbage collection run duration in seconds.
	GCDuration prometheus.Histogram

	// GCOrphanBlobs gauges the number of known orphan blobs.
	GCOrphanBlobs prometheus.Gauge

	// GCLastRunTime gauges the timestamp of the last completed GC run.
	GCLastRunTime prometheus.Gauge
}

// New creates and registers the engine's metric collectors.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates the collectors against a specific registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alexander",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by name and result code.",
		}, []string{"op", "code"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alexander",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		GCRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alexander",
			Subsystem: "gc",
			Name:      "runs_total",
			Help:      "Garbage collection runs.",
		}),
		GCBlobsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alexander",
			Subsystem: "gc",
			Name:      "blobs_deleted_total",
			Help:      "Blobs removed by garbage collection.",
		}),
		GCBytesFreed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alexander",
			Subsystem: "gc",
			Name:      "bytes_freed_total",
			Help:      "Bytes freed by garbage collection.",
		}),
		GCDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alexander",
			Subsystem: "gc",
			Name:      "run_duration_seconds",
			Help:      "Garbage collection run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		GCOrphanBlobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "alexander",
			Subsystem: "gc",
			Name:      "orphan_blobs",
			Help:      "Known orphan blobs awaiting collection.",
		}),
		GCLastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "alexander",
			Subsystem: "gc",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last completed GC run.",
		}),
	}
}

// RecordOperation records one engine operation outcome.
func (m *Metrics) RecordOperation(op, code string, seconds float64) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, code).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(seconds)
}

// RecordGCRun records the outcome of one garbage collection run.
func (m *Metrics) RecordGCRun(seconds float64, blobsDeleted int, bytesFreed int64) {
	if m == nil {
		return
	}
	m.GCRunsTotal.Inc()
	m.GCBlobsDeleted.Add(float64(blobsDeleted))
	m.GCBytesFreed.Add(float64(bytesFreed))
	m.GCDuration.Observe(seconds)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
