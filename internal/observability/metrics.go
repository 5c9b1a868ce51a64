package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flockql_queries_total",
			Help: "Total number of multi-file queries by outcome.",
		},
		[]string{"outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flockql_query_duration_seconds",
			Help:    "End-to-end query latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	scannedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flockql_scanned_bytes_total",
			Help: "Total bytes of columnar input bound to queries.",
		},
	)
	resolvedFiles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flockql_resolved_files",
			Help:    "Files resolved per query.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)
	memoryReservedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flockql_memory_reserved_bytes",
			Help: "Bytes currently committed to query execution across all requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		scannedBytesTotal,
		resolvedFiles,
		memoryReservedBytes,
	)
}

// ObserveQuery records one finished request. outcome is "ok" or the
// failure kind.
func ObserveQuery(outcome string, duration time.Duration, scannedBytes int64, files int) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDurationSeconds.Observe(duration.Seconds())
	if scannedBytes > 0 {
		scannedBytesTotal.Add(float64(scannedBytes))
	}
	if files > 0 {
		resolvedFiles.Observe(float64(files))
	}
}

// SetReservedBytes mirrors the shared accountant's committed total.
func SetReservedBytes(bytes int64) {
	memoryReservedBytes.Set(float64(bytes))
}
