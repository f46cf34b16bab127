// Package observability holds the pipeline's Prometheus instruments.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sourceRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_records_total",
			Help: "Records read from geometry sources by outcome.",
		},
		[]string{"source", "outcome"},
	)

	downloadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_download_bytes_total",
			Help: "Bytes written while downloading the water dataset archive.",
		},
		[]string{"crs"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16), // 5ms to ~160s
		},
		[]string{"stage", "outcome"},
	)

	comparisonsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intersect_comparisons_total",
			Help: "Pairwise water/target polygon comparisons performed.",
		},
	)

	matchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intersect_matches_total",
			Help: "Water geometries kept in the intersection result.",
		},
	)

	resultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_total",
			Help: "Result cache lookups and stores by outcome.",
		},
		[]string{"op", "outcome"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
)

// Init registers the instruments. Without a registerer they still count but
// are never exported.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(
		sourceRecordsTotal,
		downloadBytesTotal,
		stageDurationSeconds,
		comparisonsTotal,
		matchesTotal,
		resultCacheTotal,
		redisOpDurationSeconds,
	)
}

func AddSourceRecords(source, outcome string, n int) {
	if n <= 0 {
		return
	}
	sourceRecordsTotal.WithLabelValues(source, outcome).Add(float64(n))
}

func AddDownloadBytes(crs string, n int64) {
	if n <= 0 {
		return
	}
	downloadBytesTotal.WithLabelValues(crs).Add(float64(n))
}

func ObserveStage(stage string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	stageDurationSeconds.WithLabelValues(stage, outcome).Observe(durationSeconds)
}

func AddComparisons(n int) {
	if n > 0 {
		comparisonsTotal.Add(float64(n))
	}
}

func AddMatches(n int) {
	if n > 0 {
		matchesTotal.Add(float64(n))
	}
}

func IncResultCache(op, outcome string) {
	resultCacheTotal.WithLabelValues(op, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	redisOpDurationSeconds.WithLabelValues(op, outcome).Observe(durationSeconds)
}
