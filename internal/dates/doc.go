// Package dates derives the canonical capture timestamp of a media file.
//
// Camera and phone apps encode the capture instant into the file name. The
// supported conventions are tried in a fixed priority order and the first
// one whose digits form a valid instant wins:
//
//  1. PXL_20240128_142530123.jpg, MVIMG_20240128_142530123.jpg
//     (any prefix, date, time, then millisecond digits that are discarded)
//  2. IMG_20240128_142530.jpg, IMG_E_20240128_142530.jpg
//  3. VID_20240128_142530.mp4
//  4. 20240128_142530.jpg
//
// When no pattern matches, the file's modification time is used. Optionally
// the EXIF DateTimeOriginal tag is consulted before falling back to the
// modification time.
//
// All embedded digits are interpreted as UTC wall-clock time, and every
// returned timestamp is in UTC. Month and year filters in the index are
// evaluated against that same UTC value.
package dates
