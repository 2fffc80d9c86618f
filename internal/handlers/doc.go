// Package handlers provides HTTP request handlers for the photo-tagger API.
//
// It includes handlers for:
//   - Image queries by tag set, month, year and date range
//   - Reading and editing the tags of an image
//   - Triggering a reconciliation pass
//   - Serving originals and thumbnails
//   - Health, readiness and version endpoints
package handlers
