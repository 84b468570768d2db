package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors for the store/embedding pipeline (SPEC_FULL.md
// §5.9): bulk-store throughput, HNSW build duration, circuit-breaker
// state transitions, and indexed-file counts. Registered against the
// default registry so `julie serve-metrics` can expose them with a
// plain promhttp.Handler, matching the pattern in the one pack repo
// that actually wires client_golang (vjache-cie's `cie index
// --metrics-addr`).
var (
	bulkStoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "julie",
		Subsystem: "store",
		Name:      "bulk_store_duration_seconds",
		Help:      "Duration of IncrementalUpdateAtomic transactions.",
		Buckets:   prometheus.DefBuckets,
	})

	hnswBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "julie",
		Subsystem: "embedgen",
		Name:      "hnsw_build_duration_seconds",
		Help:      "Duration of BuildDeterministic HNSW rebuilds.",
		Buckets:   prometheus.DefBuckets,
	})

	embeddingBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "julie",
		Subsystem: "embedgen",
		Name:      "batches_total",
		Help:      "Embedding batches processed, labelled by outcome.",
	}, []string{"outcome"})

	circuitBreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "julie",
		Subsystem: "embedgen",
		Name:      "circuit_breaker_open",
		Help:      "1 if the embedding circuit breaker is currently tripped, else 0.",
	})

	filesIndexedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "julie",
		Subsystem: "incindex",
		Name:      "files_indexed_total",
		Help:      "Files successfully reconciled through IndexFile.",
	})
)

func init() {
	prometheus.MustRegister(
		bulkStoreDuration,
		hnswBuildDuration,
		embeddingBatchesTotal,
		circuitBreakerOpen,
		filesIndexedTotal,
	)
}

// ObserveBulkStoreDuration records how long one IncrementalUpdateAtomic
// transaction took.
func ObserveBulkStoreDuration(d time.Duration) {
	bulkStoreDuration.Observe(d.Seconds())
}

// ObserveHNSWBuildDuration records how long one BuildDeterministic
// rebuild took.
func ObserveHNSWBuildDuration(d time.Duration) {
	hnswBuildDuration.Observe(d.Seconds())
}

// IncEmbeddingBatch records one embedding batch's outcome.
func IncEmbeddingBatch(succeeded bool) {
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	embeddingBatchesTotal.WithLabelValues(outcome).Inc()
}

// SetCircuitBreakerOpen records the embedding circuit breaker's
// current state.
func SetCircuitBreakerOpen(open bool) {
	if open {
		circuitBreakerOpen.Set(1)
		return
	}
	circuitBreakerOpen.Set(0)
}

// IncFilesIndexed records n additional files successfully reconciled.
func IncFilesIndexed(n int) {
	filesIndexedTotal.Add(float64(n))
}

// Handler returns the HTTP handler `julie serve-metrics` mounts at
// /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
