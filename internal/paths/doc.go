// Package paths maps absolute file-system paths under the watched media root
// to index keys and to the locations of derived artifacts.
//
// An index key is the slash-separated path of a file relative to the media
// root (for example "photos/trip/beach.png"). Thumbnails mirror that key
// under the thumbnail root, so "photos/trip/beach.png" is rendered to
// "<thumbnail root>/photos/trip/beach.png".
//
// Everything in this package is a pure function of its arguments; nothing
// touches the file system.
package paths
