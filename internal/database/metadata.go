package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"photo-tagger/internal/metrics"
)

const lastReconcileKey = "last_reconcile"

// GetMetadata retrieves a metadata value by key. It returns sql.ErrNoRows
// when the key is unset.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastReconcile returns when the last reconciliation pass completed, or the
// zero time if none has.
func (d *Database) LastReconcile(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, lastReconcileKey)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastReconcile records when a reconciliation pass completed.
func (d *Database) SetLastReconcile(ctx context.Context, t time.Time) error {
	return d.SetMetadata(ctx, lastReconcileKey, t.UTC().Format(time.RFC3339))
}

// Stats returns library totals for the metrics collector.
func (d *Database) Stats(ctx context.Context) (metrics.Stats, error) {
	done := observeQuery("library_stats")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s metrics.Stats
	err := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(DISTINCT tag) FROM tags),
			(SELECT COUNT(*) FROM images WHERE NOT EXISTS (SELECT 1 FROM tags WHERE tags.imageId = images.id))
	`).Scan(&s.TotalImages, &s.TotalTags, &s.UntaggedImages)
	done(err)
	if err != nil {
		return metrics.Stats{}, wrapErr("library_stats", err)
	}

	d.UpdateDBMetrics()
	return s, nil
}
