// Package stability waits for files to stop growing before they are handed
// to the ingest pipeline.
//
// A file is considered stable once two consecutive size checks, Delay apart,
// observe the same non-zero size. Files that are still empty keep being
// polled; files that can no longer be stat'ed are abandoned without a
// callback.
package stability
