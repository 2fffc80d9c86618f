// Package metrics provides Prometheus instrumentation for the photo tagger.
//
// All metrics are prefixed with "photo_tagger_" and registered through
// promauto, so they are exposed as soon as the package is imported.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of requests currently being processed
//
// ## Index Store Metrics
//
//   - DBQueryTotal: Counter of queries by operation and status
//   - DBQueryDuration: Histogram of query duration by operation
//   - DBSizeBytes: Gauge of database file sizes (main, WAL, SHM)
//
// ## Ingest Pipeline Metrics
//
//   - IngestEventsTotal: Counter of coordinator events by event and result
//   - IngestDuration: Histogram of per-file ingest time
//   - StabilityChecksTotal: Counter of size checks by outcome
//   - StabilityPendingFiles: Gauge of files awaiting a stable size
//   - ThumbnailRendersTotal: Counter of renders by status
//   - ThumbnailRenderDuration: Histogram of render time
//   - ReconcileRunsTotal, ReconcileFilesTotal, ReconcileLastRunDuration,
//     ReconcileLastRunTimestamp, ReconcileIsRunning: reconciliation passes
//   - WatcherEventsTotal, WatcherErrors, WatchedDirectories: the filesystem watcher
//
// ## Library Metrics
//
// Refreshed periodically by a Collector:
//   - LibraryImagesTotal, LibraryTagsTotal, LibraryUntaggedTotal
//
// ## Filesystem Metrics
//
// Retry behavior of the stale-handle-tolerant helpers in internal/filesystem,
// labeled by operation and volume.
//
// # Usage
//
//	metrics.InitializeMetrics()
//	router.Handle("/metrics", promhttp.Handler())
package metrics
