// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is layered with viper: built-in defaults, an optional YAML
// file, then environment variables. [InitConfig] prepares a viper instance,
// [LoadConfig] reads it, resolves derived paths and prepares directories.
// [GenerateConfig] writes the defaults to photo-tagger.yaml.
//
// Every key can be set with PHOTO_TAGGER_<KEY> (dots become underscores).
// The following short names are also supported:
//
//   - MEDIA_DIR: Watched photo root (default: /media)
//   - CACHE_DIR: Cache directory, holds thumbnails by default (default: /cache)
//   - THUMBNAIL_DIR: Thumbnail tree, must be outside MEDIA_DIR
//   - DATABASE_DIR: Database directory (default: /database)
//   - DATABASE_PATH: Explicit database file, overrides DATABASE_DIR
//   - PORT: HTTP server port (default: 8080)
//   - STABILITY_DELAY: Quiet period before a new file is ingested (default: 1s)
//   - PRUNE_MISSING: Remove index entries for deleted files during reconciliation (default: false)
//   - RECONCILE_WORKERS: Reconciliation workers, 0 for automatic
//   - RECONCILE_INTERVAL: Periodic reconciliation, 0 for startup only
//   - USE_EXIF: Prefer EXIF DateTimeOriginal over file names (default: false)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - LOG_LEVEL: debug, info, warn, error
//   - LOG_FILE, LOG_JSON: Rotated file output
//   - LOG_STATIC_FILES, LOG_HEALTH_CHECKS: HTTP request logging
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: See package memory
//
// .env and .env.local in the working directory are loaded first.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogMemoryConfig]: Memory limit configuration
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogThumbnailInit]: Thumbnail renderer configuration
//   - [LogIngestInit]: Watcher and reconciliation settings
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownComplete]: Graceful shutdown
//
// # Example Usage
//
//	v := viper.New()
//	if err := startup.InitConfig(v, configFile); err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	config, err := startup.LoadConfig(v)
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
package startup
