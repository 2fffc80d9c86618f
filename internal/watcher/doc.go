// Package watcher turns fsnotify notifications for a directory tree into
// file-level events.
//
// fsnotify only watches single directories, so the watcher arms every
// non-hidden directory under the root and arms new ones as they appear.
// Files that land in a new directory before its watch is armed are reported
// by scanning the directory right after arming it.
package watcher
