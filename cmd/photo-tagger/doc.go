// Package main provides the entry point for photo-tagger.
//
// photo-tagger watches a directory of photos, records every file in a
// SQLite index with its capture date, tags it with the names of the
// folders it sits in, renders a thumbnail, and serves a query API over
// the index.
//
// # Commands
//
//	photo-tagger [serve]          watch the media directory and serve the API
//	photo-tagger reconcile        run one reconciliation pass and print the result
//	photo-tagger config generate  write photo-tagger.yaml with the defaults
//	photo-tagger version          print build information
//
// Global flags --config, --media-dir, --database-path and --log-level
// override the configuration file and environment; see package startup for
// the full list of settings.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from MEMORY_LIMIT when set
//  2. Configuration loading and directory checks
//  3. Database initialization
//  4. Ingestion: the watcher is armed, then an initial reconciliation runs
//     in the background while the server already answers
//  5. HTTP server with request logging, metrics and compression
//  6. Graceful shutdown on SIGINT/SIGTERM: HTTP server, metrics collector,
//     pending stability waits and in-flight ingestion, then the database
//
// /readyz reports 200 once the initial reconciliation has finished.
//
// # Build
//
// The SQLite driver needs CGO:
//
//	go build -o photo-tagger ./cmd/photo-tagger
package main
