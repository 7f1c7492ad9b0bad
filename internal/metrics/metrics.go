package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_jobs_enqueued_total",
			Help: "Total number of watermark jobs enqueued",
		},
		[]string{"type"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_jobs_processed_total",
			Help: "Total number of watermark jobs processed",
		},
		[]string{"type", "status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandstamp_jobs_processing_duration_seconds",
			Help:    "Duration of watermark job processing in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"type"},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brandstamp_worker_pool_active_jobs",
			Help: "Number of jobs currently being processed by workers",
		},
	)

	WorkerPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brandstamp_worker_pool_size",
			Help: "Size of the worker pool",
		},
	)

	ImagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_images_processed_total",
			Help: "Total number of product images processed",
		},
		[]string{"operation", "status"},
	)

	ImageProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandstamp_image_processing_duration_seconds",
			Help:    "Per-image fetch, composite and upload duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	ImageBytesFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brandstamp_image_bytes_fetched",
			Help:    "Size of fetched source images in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	CatalogCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_catalog_calls_total",
			Help: "Total number of commerce platform API calls",
		},
		[]string{"operation", "status"},
	)

	CatalogCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandstamp_catalog_call_duration_seconds",
			Help:    "Commerce platform API call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	ArchiveOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_archive_operations_total",
			Help: "Total number of original-image archive operations",
		},
		[]string{"operation", "status"},
	)

	ArchiveOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandstamp_archive_operation_duration_seconds",
			Help:    "Duration of archive storage operations in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	ArchiveBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_archive_bytes_total",
			Help: "Total bytes transferred to/from the archive",
		},
		[]string{"operation"},
	)

	RollbackVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandstamp_rollback_verifications_total",
			Help: "Total number of restored-media verification outcomes",
		},
		[]string{"outcome"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brandstamp_app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service"},
	)

	AppUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brandstamp_app_up",
			Help: "Application is up and running",
		},
	)
)

func RecordJobEnqueued(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func RecordImageProcessed(operation, status string, durationSeconds float64) {
	ImagesProcessedTotal.WithLabelValues(operation, status).Inc()
	ImageProcessingDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func RecordRollbackVerification(outcome string) {
	RollbackVerificationsTotal.WithLabelValues(outcome).Inc()
}

func SetAppInfo(version, environment, service string) {
	AppInfo.WithLabelValues(version, environment, service).Set(1)
	AppUp.Set(1)
}

func SetWorkerPoolSize(size int) {
	WorkerPoolSize.Set(float64(size))
}
