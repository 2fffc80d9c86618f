package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_tagger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_db_queries_total",
			Help: "Total number of index store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_tagger_db_query_duration_seconds",
			Help:    "Index store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_tagger_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Ingest metrics
var (
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_ingest_events_total",
			Help: "Total number of ingest events handled by the coordinator",
		},
		[]string{"event", "result"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_tagger_ingest_duration_seconds",
			Help:    "Time spent ingesting a single stable file",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

// Stability metrics
var (
	StabilityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_stability_checks_total",
			Help: "Total number of size checks performed on pending files",
		},
		[]string{"outcome"}, // "stable", "changed", "empty", "abandoned"
	)

	StabilityPendingFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_stability_pending_files",
			Help: "Number of files currently awaiting a stable size",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_thumbnail_renders_total",
			Help: "Total number of thumbnail renders",
		},
		[]string{"status"},
	)

	ThumbnailRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_tagger_thumbnail_render_duration_seconds",
			Help:    "Thumbnail render duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ThumbnailDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_thumbnail_decode_by_format_total",
			Help: "Thumbnail source decodes by image format",
		},
		[]string{"format"},
	)
)

// Reconcile metrics
var (
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_reconcile_runs_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"status"},
	)

	ReconcileLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_reconcile_last_run_duration_seconds",
			Help: "Duration of the last reconciliation pass in seconds",
		},
	)

	ReconcileLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_reconcile_last_run_timestamp",
			Help: "Unix timestamp of the last reconciliation pass",
		},
	)

	ReconcileFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_reconcile_files_total",
			Help: "Files touched by reconciliation by action",
		},
		[]string{"action"}, // "added", "pruned", "healed", "failed"
	)

	ReconcileIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_reconcile_running",
			Help: "Whether a reconciliation pass is running (1 = running, 0 = idle)",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_tagger_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Library metrics
var (
	LibraryImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_library_images",
			Help: "Number of images in the index",
		},
	)

	LibraryTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_library_tags",
			Help: "Number of distinct tags in the index",
		},
	)

	LibraryUntaggedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_library_untagged_images",
			Help: "Number of images without any tag",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_tagger_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen by filesystem operations",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_tagger_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_memory_usage_ratio",
			Help: "Heap usage as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_tagger_memory_paused",
			Help: "Whether thumbnail work is paused for memory pressure (1 = paused)",
		},
	)

	MemoryPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_tagger_memory_pauses_total",
			Help: "Number of times thumbnail work was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_tagger_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
