package metrics

// Volume labels used by filesystem retry metrics.
var Volumes = []string{"media", "thumbnails", "database", "unknown"}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		for _, vol := range Volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "unknown"} {
		ThumbnailDecodeByFormat.WithLabelValues(format)
	}

	for _, status := range []string{"success", "error", "error_unsupported", "error_encode"} {
		ThumbnailRendersTotal.WithLabelValues(status)
	}

	for _, outcome := range []string{"stable", "changed", "empty", "abandoned"} {
		StabilityChecksTotal.WithLabelValues(outcome)
	}

	for _, event := range []string{"appeared", "removed", "dir_removed"} {
		for _, result := range []string{"indexed", "skipped", "deleted", "error"} {
			IngestEventsTotal.WithLabelValues(event, result)
		}
	}

	for _, et := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(et)
	}

	for _, status := range []string{"success", "error", "cancelled"} {
		ReconcileRunsTotal.WithLabelValues(status)
	}
	for _, action := range []string{"added", "pruned", "healed", "failed"} {
		ReconcileFilesTotal.WithLabelValues(action)
	}

	for _, op := range []string{"initialize_schema", "find_by_path", "insert_image", "delete_image",
		"delete_under", "add_tags", "remove_tag", "list_tags", "list_all_tags", "filter_images",
		"list_untagged", "list_by_date_range", "get_image", "list_paths", "count_images", "library_stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
