package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hako_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// Storage metrics
var (
	S3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_s3_operations_total",
			Help: "Total number of S3 operations",
		},
		[]string{"operation", "status"},
	)

	S3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hako_s3_operation_duration_seconds",
			Help:    "Duration of S3 operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"operation"},
	)

	S3OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_s3_operation_errors_total",
			Help: "Total number of S3 operation errors by classified cause",
		},
		[]string{"operation", "error_type"},
	)
)

// Transfer metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_uploads_total",
			Help: "Total number of upload attempts",
		},
		[]string{"result"},
	)

	UploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hako_uploaded_bytes_total",
			Help: "Total number of bytes accepted by uploads",
		},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_downloads_total",
			Help: "Total number of download attempts",
		},
		[]string{"kind", "result"}, // kind: api, share
	)
)

// Share link metrics
var (
	ShareTokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hako_share_tokens_issued_total",
			Help: "Total number of share tokens issued",
		},
	)

	ShareRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_share_rejects_total",
			Help: "Total number of rejected share downloads",
		},
		[]string{"reason"}, // reason: invalid_token, expired, not_found, storage_error
	)
)

// Trash metrics
var (
	TrashOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hako_trash_operations_total",
			Help: "Total number of trash operations",
		},
		[]string{"operation", "result"}, // operation: trash, restore, delete, empty, purge
	)

	TrashPurgedObjectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hako_trash_purged_objects_total",
			Help: "Total number of trash entries removed by the retention purge",
		},
	)
)

// Bucket statistics gauges, refreshed by the Collector
var (
	ObjectsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hako_objects_total",
			Help: "Current number of live objects in the bucket",
		},
	)

	BucketSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hako_bucket_size_bytes",
			Help: "Current total size of live objects in bytes",
		},
	)

	TrashObjectsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hako_trash_objects_total",
			Help: "Current number of objects in the trash",
		},
	)

	TrashSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hako_trash_size_bytes",
			Help: "Current total size of trashed objects in bytes",
		},
	)
)
