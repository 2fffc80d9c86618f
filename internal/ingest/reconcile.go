package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/logging"
	"photo-tagger/internal/metrics"
	"photo-tagger/internal/paths"
	"photo-tagger/internal/workers"
)

// maxReconcileWorkers caps the automatic worker count. SQLite serializes
// writes, so more workers only help with thumbnail rendering.
const maxReconcileWorkers = 8

// ErrReconcileRunning is returned when a pass is requested while another
// one is in progress.
var ErrReconcileRunning = errors.New("reconciliation already in progress")

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Scanned  int           `json:"scanned"`
	Added    int           `json:"added"`
	Healed   int           `json:"healed"`
	Pruned   int           `json:"pruned"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

type reconcileCounts struct {
	scanned atomic.Int64
	added   atomic.Int64
	healed  atomic.Int64
	pruned  atomic.Int64
	failed  atomic.Int64
}

func (rc *reconcileCounts) result(d time.Duration) ReconcileResult {
	return ReconcileResult{
		Scanned:  int(rc.scanned.Load()),
		Added:    int(rc.added.Load()),
		Healed:   int(rc.healed.Load()),
		Pruned:   int(rc.pruned.Load()),
		Failed:   int(rc.failed.Load()),
		Duration: d,
	}
}

// Reconcile walks the media root and ingests every file the index is
// missing, without waiting for stability. Known files get a missing
// thumbnail re-rendered. With PruneMissing set, entries whose file no
// longer exists are removed afterwards. Running it again on an unchanged
// tree adds nothing.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if !c.tryStartReconcile() {
		logging.Info("Reconciliation already in progress, skipping...")
		return ReconcileResult{}, ErrReconcileRunning
	}

	metrics.ReconcileIsRunning.Set(1)
	defer metrics.ReconcileIsRunning.Set(0)

	start := time.Now()
	logging.Info("Starting reconciliation of %s", c.cfg.MediaDir)

	var counts reconcileCounts
	seen := make(map[string]struct{})
	incomplete := false

	numWorkers := workers.Resolve(c.cfg.Workers, maxReconcileWorkers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	logging.Debug("Reconciling with %d workers", numWorkers)

	walkErr := c.walk(gctx, c.cfg.MediaDir, true, &incomplete, func(absPath, rel string) {
		seen[rel] = struct{}{}
		counts.scanned.Add(1)

		g.Go(func() error {
			if err := c.waitForMemory(gctx); err != nil {
				return err
			}

			result, err := c.ingestFile(gctx, absPath, true)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logging.Warn("Reconcile failed for %s: %v", rel, err)
				counts.failed.Add(1)
				metrics.ReconcileFilesTotal.WithLabelValues("failed").Inc()
				return nil
			}

			switch result {
			case outcomeIndexed:
				counts.added.Add(1)
				metrics.ReconcileFilesTotal.WithLabelValues("added").Inc()
			case outcomeHealed:
				counts.healed.Add(1)
				metrics.ReconcileFilesTotal.WithLabelValues("healed").Inc()
			}
			return nil
		})
	})

	err := g.Wait()
	if walkErr != nil && err == nil {
		err = walkErr
	}

	if err == nil && c.cfg.PruneMissing {
		if incomplete {
			logging.Warn("Skipping prune: part of the media tree could not be read")
		} else {
			err = c.prune(ctx, seen, &counts)
		}
	}

	result := counts.result(time.Since(start))
	c.finishReconcile(result, err)

	metrics.ReconcileLastRunDuration.Set(result.Duration.Seconds())
	metrics.ReconcileLastRunTimestamp.Set(float64(time.Now().Unix()))

	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.ReconcileRunsTotal.WithLabelValues("cancelled").Inc()
			logging.Info("Reconciliation cancelled after %d files", result.Scanned)
		} else {
			metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		}
		return result, err
	}
	metrics.ReconcileRunsTotal.WithLabelValues("success").Inc()

	if err := c.store.SetLastReconcile(ctx, time.Now().UTC()); err != nil {
		logging.Warn("Failed to record reconciliation time: %v", err)
	}

	logging.Info("Reconciliation complete: %d scanned, %d added, %d healed, %d pruned, %d failed in %v",
		result.Scanned, result.Added, result.Healed, result.Pruned, result.Failed, result.Duration)

	return result, nil
}

// walk visits every regular, non-hidden file under dir. A failure to read
// the root is returned; unreadable subdirectories are logged and flagged
// through incomplete.
func (c *Coordinator) walk(ctx context.Context, dir string, isRoot bool, incomplete *bool, visit func(absPath, rel string)) error {
	entries, err := filesystem.ReadDirWithRetry(dir, c.retry)
	if err != nil {
		if isRoot {
			return fmt.Errorf("failed to read media directory: %w", err)
		}
		logging.Warn("Error accessing path %s: %v", dir, err)
		*incomplete = true
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		absPath := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := c.walk(ctx, absPath, false, incomplete, visit); err != nil {
				return err
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		rel, err := paths.ToRelativeKey(c.cfg.MediaDir, absPath)
		if err != nil {
			continue
		}
		visit(absPath, rel)
	}

	return nil
}

// prune removes entries that were not seen by the walk and whose file is
// still absent.
func (c *Coordinator) prune(ctx context.Context, seen map[string]struct{}, counts *reconcileCounts) error {
	known, err := c.store.ListPaths(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexed paths: %w", err)
	}

	for _, rel := range known {
		if _, ok := seen[rel]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		absPath := paths.ToAbsolute(c.cfg.MediaDir, rel)
		if _, err := filesystem.StatWithRetry(absPath, c.retry); !errors.Is(err, fs.ErrNotExist) {
			continue
		}

		deleted, err := c.removeFile(ctx, absPath)
		if err != nil {
			logging.Warn("Failed to prune %s: %v", rel, err)
			counts.failed.Add(1)
			metrics.ReconcileFilesTotal.WithLabelValues("failed").Inc()
			continue
		}
		if deleted {
			counts.pruned.Add(1)
			metrics.ReconcileFilesTotal.WithLabelValues("pruned").Inc()
		}
	}

	if n := counts.pruned.Load(); n > 0 {
		logging.Info("Removed %d missing files from index", n)
	}
	return nil
}

// tryStartReconcile attempts to start a pass, returns false if one is already in progress.
func (c *Coordinator) tryStartReconcile() bool {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	if c.isReconciling {
		return false
	}
	c.isReconciling = true
	return true
}

// finishReconcile records the outcome of a pass.
func (c *Coordinator) finishReconcile(result ReconcileResult, err error) {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	c.isReconciling = false
	c.initialComplete = true
	c.lastResult = &result
	if err == nil {
		c.lastReconcile = time.Now()
	}
}

// IsReconciling returns whether a pass is currently in progress.
func (c *Coordinator) IsReconciling() bool {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()
	return c.isReconciling
}

// LastReconcileTime returns when the last successful pass finished.
func (c *Coordinator) LastReconcileTime() time.Time {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()
	return c.lastReconcile
}

// TriggerReconcile starts a pass in the background. It returns false when
// one is already running or the coordinator is stopped.
func (c *Coordinator) TriggerReconcile() bool {
	if c.IsReconciling() {
		return false
	}
	return c.spawn(func() {
		if _, err := c.Reconcile(c.runContext()); err != nil && !errors.Is(err, ErrReconcileRunning) {
			logging.Error("Manually triggered reconciliation failed: %v", err)
		}
	})
}

func (c *Coordinator) periodicReconcile(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic reconciliation triggered")
			if _, err := c.Reconcile(ctx); err != nil && !errors.Is(err, ErrReconcileRunning) {
				logging.Error("Periodic reconciliation failed: %v", err)
			}
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
