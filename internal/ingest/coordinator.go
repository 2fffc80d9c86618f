package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"photo-tagger/internal/database"
	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/logging"
	"photo-tagger/internal/media"
	"photo-tagger/internal/memory"
	"photo-tagger/internal/mediatypes"
	"photo-tagger/internal/metrics"
	"photo-tagger/internal/paths"
	"photo-tagger/internal/stability"
	"photo-tagger/internal/watcher"
)

// Store is the subset of the index store the coordinator writes to.
type Store interface {
	FindByPath(ctx context.Context, relativePath string) (*database.Image, error)
	Insert(ctx context.Context, relativePath string, dateTaken time.Time) (*database.Image, error)
	Delete(ctx context.Context, relativePath string) (bool, error)
	DeleteUnder(ctx context.Context, dirRelative string) (int64, error)
	AddTags(ctx context.Context, imageID int64, tags []string) (int, error)
	ListPaths(ctx context.Context) ([]string, error)
	SetLastReconcile(ctx context.Context, t time.Time) error
}

// DateSource resolves the capture timestamp of a file.
type DateSource interface {
	DateForFile(path string, modTime time.Time) time.Time
}

// Config controls the coordinator.
type Config struct {
	MediaDir     string
	ThumbnailDir string

	// Thumbnail bounds; zero uses the renderer defaults.
	MaxWidth  int
	MaxHeight int

	// StabilityDelay is the interval between size checks of a new file.
	StabilityDelay time.Duration

	// PruneMissing deletes entries whose file is gone during Reconcile.
	PruneMissing bool

	// Workers bounds reconcile parallelism; 0 picks a value from the CPU count.
	Workers int

	// ReconcileInterval schedules periodic passes after Start; 0 disables them.
	ReconcileInterval time.Duration
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeIndexed
	outcomeHealed
)

// Coordinator applies filesystem events and reconciliation passes to the index.
type Coordinator struct {
	store    Store
	renderer media.Renderer
	dates    DateSource
	cfg      Config
	retry    filesystem.RetryConfig
	detector *stability.Detector
	locks    *pathLocks
	memory   *memory.Monitor

	lifeMu   sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	watcher  *watcher.Watcher
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	reconcileMu     sync.Mutex
	isReconciling   bool
	initialComplete bool
	initialError    error
	lastReconcile   time.Time
	lastResult      *ReconcileResult
	startTime       time.Time
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready                 bool             `json:"ready"`
	Reconciling           bool             `json:"reconciling"`
	Watching              bool             `json:"watching"`
	StartTime             time.Time        `json:"startTime"`
	Uptime                string           `json:"uptime"`
	LastReconcile         time.Time        `json:"lastReconcile,omitempty"`
	LastResult            *ReconcileResult `json:"lastResult,omitempty"`
	InitialReconcileError string           `json:"initialReconcileError,omitempty"`
	PendingFiles          int              `json:"pendingFiles"`
	WatchedDirectories    int              `json:"watchedDirectories"`
}

// New creates a Coordinator. Nothing runs until Start or Reconcile is called.
func New(store Store, renderer media.Renderer, dates DateSource, cfg Config) *Coordinator {
	c := &Coordinator{
		store:     store,
		renderer:  renderer,
		dates:     dates,
		cfg:       cfg,
		retry:     filesystem.DefaultRetryConfig(),
		locks:     newPathLocks(),
		ctx:       context.Background(),
		cancel:    func() {},
		stopChan:  make(chan struct{}),
		startTime: time.Now(),
	}
	c.detector = stability.New(cfg.StabilityDelay, func(path string) {
		c.spawn(func() { c.ingestStable(path) })
	})
	return c
}

// SetMemoryMonitor makes ingestion wait while m reports memory pressure.
// Call it before Start.
func (c *Coordinator) SetMemoryMonitor(m *memory.Monitor) {
	c.memory = m
}

// waitForMemory blocks while the memory monitor is paused. A stopped
// monitor no longer holds work back.
func (c *Coordinator) waitForMemory(ctx context.Context) error {
	if err := c.memory.Wait(ctx); err != nil && !errors.Is(err, memory.ErrStopped) {
		return err
	}
	return nil
}

// Start arms the watcher on the media root, then runs the initial
// reconciliation in the background. Events arriving during that pass are
// handled normally; the per-path lock and the existence check keep the two
// from double-inserting.
func (c *Coordinator) Start(ctx context.Context) error {
	w, err := watcher.New(c.cfg.MediaDir)
	if err != nil {
		return fmt.Errorf("failed to watch media directory: %w", err)
	}

	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		_ = w.Close()
		return errors.New("coordinator is stopped")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.watcher = w
	runCtx := c.ctx
	c.lifeMu.Unlock()

	logging.Info("Watching %s (%d directories)", c.cfg.MediaDir, w.WatchedDirs())

	c.spawn(func() {
		if err := w.Run(runCtx, c.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Watcher stopped: %v", err)
		}
	})

	c.spawn(func() {
		logging.Info("Starting initial reconciliation in background...")
		if _, err := c.Reconcile(runCtx); err != nil && !errors.Is(err, ErrReconcileRunning) {
			logging.Error("Initial reconciliation error: %v", err)
			c.reconcileMu.Lock()
			c.initialError = err
			c.reconcileMu.Unlock()
		}
	})

	if c.cfg.ReconcileInterval > 0 {
		c.spawn(func() { c.periodicReconcile(runCtx) })
	}

	return nil
}

// Stop cancels pending stability waits, closes the watcher, and waits for
// in-flight work to finish. It is safe to call more than once.
func (c *Coordinator) Stop() {
	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopChan)
	c.cancel()
	w := c.watcher
	c.lifeMu.Unlock()

	c.detector.Stop()
	if w != nil {
		if err := w.Close(); err != nil {
			logging.Warn("Failed to close watcher: %v", err)
		}
	}

	c.wg.Wait()
	logging.Info("Ingestion stopped")
}

// spawn runs fn on a tracked goroutine unless the coordinator is stopped.
func (c *Coordinator) spawn(fn func()) bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.stopped {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Coordinator) runContext() context.Context {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.ctx
}

// HandleEvent dispatches a watcher event.
func (c *Coordinator) HandleEvent(ev watcher.Event) {
	switch ev.Kind {
	case watcher.Appeared:
		c.OnFileAppeared(ev.Path)
	case watcher.Removed:
		c.spawn(func() { c.OnFileRemoved(ev.Path) })
	case watcher.DirRemoved:
		c.spawn(func() { c.OnDirectoryRemoved(ev.Path) })
	}
}

// OnFileAppeared starts a stability wait for path. The file is ingested
// once its size stops changing.
func (c *Coordinator) OnFileAppeared(path string) {
	if rel, err := paths.ToRelativeKey(c.cfg.MediaDir, path); err != nil || paths.IsHidden(rel) {
		return
	}
	logging.Debug("File appeared, waiting for it to settle: %s", path)
	c.detector.Observe(path)
}

func (c *Coordinator) ingestStable(path string) {
	ctx := c.runContext()
	if err := c.waitForMemory(ctx); err != nil {
		return
	}

	start := time.Now()
	result, err := c.ingestFile(ctx, path, false)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		logging.Error("Failed to ingest %s: %v", path, err)
		metrics.IngestEventsTotal.WithLabelValues("appeared", "error").Inc()
	case result == outcomeIndexed:
		metrics.IngestEventsTotal.WithLabelValues("appeared", "indexed").Inc()
	default:
		metrics.IngestEventsTotal.WithLabelValues("appeared", "skipped").Inc()
	}
}

// OnFileRemoved deletes the thumbnail and index entry for path and cancels
// any stability wait on it. Removing an unknown path is a no-op.
func (c *Coordinator) OnFileRemoved(path string) {
	deleted, err := c.removeFile(c.runContext(), path)
	switch {
	case err != nil:
		logging.Error("Failed to remove %s from index: %v", path, err)
		metrics.IngestEventsTotal.WithLabelValues("removed", "error").Inc()
	case deleted:
		metrics.IngestEventsTotal.WithLabelValues("removed", "deleted").Inc()
	default:
		metrics.IngestEventsTotal.WithLabelValues("removed", "skipped").Inc()
	}
}

// OnDirectoryRemoved deletes every entry under path along with the
// mirrored thumbnail directory.
func (c *Coordinator) OnDirectoryRemoved(path string) {
	ctx := c.runContext()

	rel, err := paths.ToRelativeKey(c.cfg.MediaDir, path)
	if err != nil {
		logging.Warn("Ignoring removal outside the media root: %v", err)
		return
	}

	if n := c.detector.CancelUnder(path); n > 0 {
		logging.Debug("Cancelled %d pending files under %s", n, rel)
	}

	deleted, err := c.store.DeleteUnder(ctx, rel)
	if err != nil {
		logging.Error("Failed to remove directory %s from index: %v", rel, err)
		metrics.IngestEventsTotal.WithLabelValues("dir_removed", "error").Inc()
		return
	}

	if err := c.renderer.RemoveAll(paths.ToDerivedPath(c.cfg.ThumbnailDir, rel)); err != nil {
		logging.Warn("Failed to remove thumbnails for %s: %v", rel, err)
	}

	if deleted > 0 {
		logging.Info("Removed directory %s (%d entries)", rel, deleted)
		metrics.IngestEventsTotal.WithLabelValues("dir_removed", "deleted").Inc()
	} else {
		metrics.IngestEventsTotal.WithLabelValues("dir_removed", "skipped").Inc()
	}
}

func (c *Coordinator) removeFile(ctx context.Context, absPath string) (bool, error) {
	rel, err := paths.ToRelativeKey(c.cfg.MediaDir, absPath)
	if err != nil {
		return false, err
	}

	c.detector.Cancel(absPath)

	unlock := c.locks.lock(rel)
	defer unlock()

	if err := c.renderer.Remove(paths.ToDerivedPath(c.cfg.ThumbnailDir, rel)); err != nil {
		logging.Warn("Failed to remove thumbnail for %s: %v", rel, err)
	}

	deleted, err := c.store.Delete(ctx, rel)
	if err != nil {
		return false, err
	}
	if deleted {
		logging.Info("Removed %s", rel)
	}
	return deleted, nil
}

// ingestFile indexes absPath if the index does not know it yet. With heal
// set, a known file whose thumbnail is missing gets it re-rendered.
func (c *Coordinator) ingestFile(ctx context.Context, absPath string, heal bool) (outcome, error) {
	rel, err := paths.ToRelativeKey(c.cfg.MediaDir, absPath)
	if err != nil {
		return outcomeSkipped, err
	}
	if paths.IsHidden(rel) {
		return outcomeSkipped, nil
	}

	unlock := c.locks.lock(rel)
	defer unlock()

	existing, err := c.store.FindByPath(ctx, rel)
	if err != nil {
		return outcomeSkipped, err
	}

	thumbPath := paths.ToDerivedPath(c.cfg.ThumbnailDir, rel)

	if existing != nil {
		if heal && mediatypes.IsRenderable(absPath) && !c.exists(thumbPath) {
			if c.renderThumbnail(ctx, absPath, thumbPath) {
				logging.Info("Regenerated missing thumbnail for %s", rel)
				return outcomeHealed, nil
			}
		}
		logging.Debug("Already indexed: %s", rel)
		return outcomeSkipped, nil
	}

	info, err := filesystem.StatWithRetry(absPath, c.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug("File vanished before ingest: %s", rel)
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}
	if info.IsDir() {
		return outcomeSkipped, nil
	}

	if !c.exists(thumbPath) {
		c.renderThumbnail(ctx, absPath, thumbPath)
	}

	dateTaken := c.dates.DateForFile(absPath, info.ModTime())

	img, err := c.store.Insert(ctx, rel, dateTaken)
	if errors.Is(err, database.ErrDuplicatePath) {
		logging.Debug("Concurrent insert won for %s", rel)
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, err
	}

	if segments := paths.ParentSegments(rel); len(segments) > 0 {
		if _, err := c.store.AddTags(ctx, img.ID, segments); err != nil {
			return outcomeIndexed, fmt.Errorf("failed to tag %s: %w", rel, err)
		}
	}

	logging.Info("Indexed %s (taken %s)", rel, dateTaken.Format(time.RFC3339))
	return outcomeIndexed, nil
}

// renderThumbnail reports whether a thumbnail now exists at thumbPath.
// Failures are logged; a missing thumbnail is retried by the next
// reconciliation.
func (c *Coordinator) renderThumbnail(ctx context.Context, src, thumbPath string) bool {
	err := c.renderer.Render(ctx, src, thumbPath, c.cfg.MaxWidth, c.cfg.MaxHeight)
	switch {
	case err == nil:
		return true
	case errors.Is(err, media.ErrUnsupportedFormat):
		logging.Debug("No thumbnail for %s: %v", src, err)
	case errors.Is(err, context.Canceled):
	default:
		logging.Warn("Thumbnail render failed for %s: %v", src, err)
	}
	return false
}

func (c *Coordinator) exists(path string) bool {
	_, err := filesystem.StatWithRetry(path, c.retry)
	return err == nil
}

// IsReady reports whether the initial reconciliation has finished.
func (c *Coordinator) IsReady() bool {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()
	return c.initialComplete
}

// GetHealthStatus returns detailed health information.
func (c *Coordinator) GetHealthStatus() HealthStatus {
	c.lifeMu.Lock()
	w := c.watcher
	watching := w != nil && !c.stopped
	c.lifeMu.Unlock()

	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	status := HealthStatus{
		Ready:         c.initialComplete,
		Reconciling:   c.isReconciling,
		Watching:      watching,
		StartTime:     c.startTime,
		Uptime:        time.Since(c.startTime).String(),
		LastReconcile: c.lastReconcile,
		PendingFiles:  c.detector.Pending(),
	}

	if c.lastResult != nil {
		result := *c.lastResult
		status.LastResult = &result
	}
	if c.initialError != nil {
		status.InitialReconcileError = c.initialError.Error()
	}
	if watching {
		status.WatchedDirectories = w.WatchedDirs()
	}

	return status
}
