package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpr",
		Name:      "scans_total",
		Help:      "Total number of scans by trigger and outcome",
	}, []string{"trigger", "outcome"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpr",
		Name:      "scan_duration_seconds",
		Help:      "Duration of a full scan from image resolution to archival",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"trigger"})

	Comparisons = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpr",
		Name:      "comparisons_total",
		Help:      "Total number of corpus images scored against a query",
	})

	ComparisonDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpr",
		Name:      "comparison_duration_seconds",
		Help:      "Duration of fetching and scoring one corpus image",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	CorpusFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpr",
		Name:      "corpus_fetch_failures_total",
		Help:      "Corpus images skipped because they could not be fetched or scored",
	})

	MatchConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpr",
		Name:      "match_confidence",
		Help:      "Confidence of retained match candidates",
		Buckets:   prometheus.LinearBuckets(50, 5, 11),
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpr",
		Name:      "audit_write_failures_total",
		Help:      "Scan attempts that could not be persisted",
	})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpr",
		Name:      "archive_failures_total",
		Help:      "Best matches that could not be copied to the evidence bucket",
	})

	ReviewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpr",
		Name:      "review_decisions_total",
		Help:      "Review decisions by action and outcome",
	}, []string{"action", "outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpr",
		Name:      "queue_depth",
		Help:      "Number of pending scan tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpr",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpr",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
