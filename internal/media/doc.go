// Package media renders bounded thumbnails for indexed images.
//
// Rendering is best effort. A thumbnail that is missing at its derived path is
// the signal that it still has to be produced, so the generator never leaves a
// partially written file at the destination: output goes to a temporary file
// in the same directory and is renamed into place.
package media
