package stability

import (
	"path/filepath"
	"sync"
	"time"

	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/logging"
	"photo-tagger/internal/metrics"
)

// DefaultDelay is the interval between size checks.
const DefaultDelay = time.Second

// sizeFunc returns the current size of path.
type sizeFunc func(path string) (int64, error)

type entry struct {
	lastSize   int64
	timer      *time.Timer
	generation uint64
}

// Detector tracks files that are still being written.
type Detector struct {
	delay    time.Duration
	onStable func(path string)
	size     sizeFunc

	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64
	stopped bool
}

// New returns a Detector that calls onStable, at most once per Observe
// cycle, when a watched file stops changing. A non-positive delay uses
// DefaultDelay.
func New(delay time.Duration, onStable func(path string)) *Detector {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Detector{
		delay:    delay,
		onStable: onStable,
		size:     statSize,
		entries:  make(map[string]*entry),
	}
}

func statSize(path string) (int64, error) {
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Delay returns the interval between size checks.
func (d *Detector) Delay() time.Duration {
	return d.delay
}

// Observe starts watching path, or restarts the wait from scratch if it is
// already being watched.
func (d *Detector) Observe(path string) {
	path = filepath.Clean(path)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.nextGen++
	gen := d.nextGen

	if e, ok := d.entries[path]; ok {
		// A new event is a fresh growth signal: two checks are needed again.
		e.timer.Stop()
		e.lastSize = 0
		e.generation = gen
		e.timer = d.schedule(path, gen)
		logging.Debug("Stability wait restarted: %s", path)
		return
	}

	d.entries[path] = &entry{
		generation: gen,
		timer:      d.schedule(path, gen),
	}
	metrics.StabilityPendingFiles.Inc()
	logging.Debug("Stability wait started: %s", path)
}

// Cancel stops watching path. It reports whether path was pending.
func (d *Detector) Cancel(path string) bool {
	path = filepath.Clean(path)

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[path]
	if !ok {
		return false
	}
	e.timer.Stop()
	d.remove(path)
	return true
}

// CancelUnder stops watching every path inside dir and returns how many
// waits were cancelled.
func (d *Detector) CancelUnder(dir string) int {
	prefix := filepath.Clean(dir) + string(filepath.Separator)

	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for path, e := range d.entries {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			e.timer.Stop()
			d.remove(path)
			n++
		}
	}
	return n
}

// Pending returns the number of files being watched.
func (d *Detector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// IsPending reports whether path is being watched.
func (d *Detector) IsPending(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[filepath.Clean(path)]
	return ok
}

// Stop cancels every wait. Later calls to Observe are ignored.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, e := range d.entries {
		e.timer.Stop()
		d.remove(path)
	}
}

// schedule must be called with d.mu held.
func (d *Detector) schedule(path string, gen uint64) *time.Timer {
	return time.AfterFunc(d.delay, func() {
		d.check(path, gen)
	})
}

// remove must be called with d.mu held.
func (d *Detector) remove(path string) {
	delete(d.entries, path)
	metrics.StabilityPendingFiles.Dec()
}

// current returns the entry for path if gen is still its live generation.
// Must be called with d.mu held.
func (d *Detector) current(path string, gen uint64) (*entry, bool) {
	if d.stopped {
		return nil, false
	}
	e, ok := d.entries[path]
	if !ok || e.generation != gen {
		return nil, false
	}
	return e, true
}

func (d *Detector) check(path string, gen uint64) {
	d.mu.Lock()
	_, live := d.current(path, gen)
	d.mu.Unlock()
	if !live {
		return
	}

	// stat outside the lock; slow mounts must not block other paths
	size, err := d.size(path)

	d.mu.Lock()
	e, live := d.current(path, gen)
	if !live {
		d.mu.Unlock()
		return
	}

	if err != nil {
		d.remove(path)
		d.mu.Unlock()
		metrics.StabilityChecksTotal.WithLabelValues("abandoned").Inc()
		logging.Warn("Abandoning stability wait for %s: %v", path, err)
		return
	}

	switch {
	case size == 0:
		e.lastSize = 0
		e.timer = d.schedule(path, gen)
		d.mu.Unlock()
		metrics.StabilityChecksTotal.WithLabelValues("empty").Inc()
		return

	case size != e.lastSize:
		// growth and truncation both mean the writer is still active
		e.lastSize = size
		e.timer = d.schedule(path, gen)
		d.mu.Unlock()
		metrics.StabilityChecksTotal.WithLabelValues("changed").Inc()
		return
	}

	d.remove(path)
	d.mu.Unlock()

	metrics.StabilityChecksTotal.WithLabelValues("stable").Inc()
	logging.Debug("File stable at %d bytes: %s", size, path)

	if d.onStable != nil {
		d.onStable(path)
	}
}
