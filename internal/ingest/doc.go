// Package ingest keeps the index in step with the media directory.
//
// The Coordinator receives watcher events and turns them into index
// changes:
//   - Appeared: the file is handed to a stability detector and ingested
//     once its size stops changing
//   - Removed: the thumbnail and the index entry (with its tags) are deleted
//   - DirRemoved: every entry under the directory is deleted along with the
//     mirrored thumbnail directory
//
// Ingesting a file renders its thumbnail when none exists yet, inserts the
// file with its capture date, and tags it with each of its parent
// directory names.
//
// Reconcile walks the whole media tree and ingests anything the index is
// missing. It runs on startup, optionally on an interval, and on demand.
// Entries whose file has disappeared are only pruned when PruneMissing is
// set. Hidden files and directories (prefixed with '.') are ignored
// everywhere.
//
// All work on one relative path is serialized through a keyed lock.
// Background failures are logged and counted, never returned to the
// watcher.
package ingest
