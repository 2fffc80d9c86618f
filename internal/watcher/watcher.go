package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/metrics"
	"photo-tagger/internal/paths"
)

// Kind classifies an Event.
type Kind int

const (
	// Appeared is reported when a regular file is created or written.
	Appeared Kind = iota
	// Removed is reported when a file is deleted or moved away.
	Removed
	// DirRemoved is reported when a watched directory is deleted or moved away.
	DirRemoved
)

func (k Kind) String() string {
	switch k {
	case Appeared:
		return "appeared"
	case Removed:
		return "removed"
	case DirRemoved:
		return "dir_removed"
	default:
		return "unknown"
	}
}

// Event is a change to a path under the watched root.
type Event struct {
	Kind Kind
	Path string
}

// Watcher watches a directory tree.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher

	mu   sync.Mutex
	dirs map[string]struct{}
}

// New arms watches on root and every non-hidden directory beneath it.
func New(root string) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}

	w := &Watcher{
		root: root,
		fsw:  fsw,
		dirs: make(map[string]struct{}),
	}

	if err := w.addTree(root, nil); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logging.Error("failed to close file watcher: %v", closeErr)
		}
		return nil, err
	}

	logging.Debug("Watcher started, watching %d directories under %s", w.WatchedDirs(), root)
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string {
	return w.root
}

// WatchedDirs returns the number of armed directory watches.
func (w *Watcher) WatchedDirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers events to handle until ctx is cancelled or the watcher is
// closed. handle is called from the Run goroutine.
func (w *Watcher) Run(ctx context.Context, handle func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event, handle)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := paths.ToRelativeKey(w.root, path)
	if err != nil {
		return true
	}
	return paths.IsHidden(rel)
}

func (w *Watcher) handle(event fsnotify.Event, emit func(Event)) {
	if w.ignored(event.Name) {
		return
	}

	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if w.forgetDir(event.Name) {
			emit(Event{Kind: DirRemoved, Path: event.Name})
			return
		}
		emit(Event{Kind: Removed, Path: event.Name})

	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Lstat(event.Name)
		if err != nil {
			// gone again before we looked; the Remove event follows
			return
		}
		switch {
		case info.IsDir():
			if event.Op&fsnotify.Create != 0 {
				if err := w.addTree(event.Name, emit); err != nil {
					logging.Warn("failed to watch new directory %s: %v", event.Name, err)
				}
			}
		case info.Mode().IsRegular():
			emit(Event{Kind: Appeared, Path: event.Name})
		}
	}
}

// addTree arms watches on dir and its subdirectories. When emit is non-nil,
// regular files found during the walk are reported as Appeared.
func (w *Watcher) addTree(dir string, emit func(Event)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Warn("failed to walk %s: %v", path, err)
			return nil
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				metrics.WatcherErrors.Inc()
				if path == dir {
					return addErr
				}
				logging.Warn("failed to add path to watcher %s: %v", path, addErr)
				return nil
			}
			w.mu.Lock()
			if _, ok := w.dirs[path]; !ok {
				w.dirs[path] = struct{}{}
				metrics.WatchedDirectories.Inc()
			}
			w.mu.Unlock()
			return nil
		}

		if emit != nil && d.Type().IsRegular() {
			emit(Event{Kind: Appeared, Path: path})
		}
		return nil
	})
}

// forgetDir drops dir and everything below it from the watch set. It
// reports whether dir was a watched directory.
func (w *Watcher) forgetDir(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; !ok {
		return false
	}

	prefix := dir + string(filepath.Separator)
	for path := range w.dirs {
		if path == dir || strings.HasPrefix(path, prefix) {
			delete(w.dirs, path)
			metrics.WatchedDirectories.Dec()
			// inotify drops watches on deleted directories itself
			if err := w.fsw.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				logging.Debug("failed to remove watch %s: %v", path, err)
			}
		}
	}
	return true
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
