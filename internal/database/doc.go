// Package database is the SQLite-backed index store.
//
// It holds one row per indexed file, keyed by the file's slash-separated
// path relative to the media root, plus the normalized tags attached to
// each image. Tag rows cascade with their image.
//
// The database runs in WAL mode with foreign keys enabled on every
// connection. Capture timestamps are stored as UTC ISO-8601 strings with
// millisecond precision so that lexical order matches chronological order
// and strftime can extract months and years.
package database
