package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/tags"
)

// AddTags attaches tags to an image. Tags are normalized first; empty
// results and tags the image already carries are skipped. It returns the
// number of tags actually added, or ErrNotFound if the image is unknown.
func (d *Database) AddTags(ctx context.Context, imageID int64, tagNames []string) (int, error) {
	normalized := tags.NormalizeAll(tagNames)
	if len(normalized) == 0 {
		return 0, nil
	}

	done := observeQuery("add_tags")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return 0, wrapErr("add_tags", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error("rollback failed: %v", rbErr)
			}
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM images WHERE id = ?", imageID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return 0, ErrNotFound
	}
	if err != nil {
		done(err)
		return 0, wrapErr("add_tags", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO tags (imageId, tag) VALUES (?, ?)")
	if err != nil {
		done(err)
		return 0, wrapErr("add_tags", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			logging.Warn("failed to close statement: %v", err)
		}
	}()

	added := 0
	for _, tag := range normalized {
		result, err := stmt.ExecContext(ctx, imageID, tag)
		if err != nil {
			done(err)
			return 0, wrapErr("add_tags", fmt.Errorf("tag %q: %w", tag, err))
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return 0, wrapErr("add_tags", err)
	}
	committed = true
	done(nil)
	return added, nil
}

// RemoveTag detaches tag from an image. The match is exact: callers pass
// the canonical form. Removing a tag the image does not carry is a no-op.
func (d *Database) RemoveTag(ctx context.Context, imageID int64, tag string) error {
	done := observeQuery("remove_tag")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, "DELETE FROM tags WHERE imageId = ? AND tag = ?", imageID, tag)
	done(err)
	return wrapErr("remove_tag", err)
}

// ListTags returns an image's tags in alphabetical order.
func (d *Database) ListTags(ctx context.Context, imageID int64) ([]string, error) {
	done := observeQuery("list_tags")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.listTags(ctx, imageID)
	done(err)
	if err != nil {
		return nil, wrapErr("list_tags", err)
	}
	return result, nil
}

// listTags expects the caller to hold d.mu.
func (d *Database) listTags(ctx context.Context, imageID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT tag FROM tags WHERE imageId = ? ORDER BY tag", imageID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("error closing rows: %v", err)
		}
	}()

	result := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		result = append(result, tag)
	}
	return result, rows.Err()
}

// ListAllTags returns every tag in use with its image count, most used
// first and alphabetical among equals.
func (d *Database) ListAllTags(ctx context.Context) ([]TagCount, error) {
	done := observeQuery("list_all_tags")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS count
		FROM tags
		GROUP BY tag
		ORDER BY count DESC, tag ASC
	`)
	if err != nil {
		done(err)
		return nil, wrapErr("list_all_tags", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("error closing rows: %v", err)
		}
	}()

	counts := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			done(err)
			return nil, wrapErr("list_all_tags", err)
		}
		counts = append(counts, tc)
	}

	err = rows.Err()
	done(err)
	if err != nil {
		return nil, wrapErr("list_all_tags", err)
	}
	return counts, nil
}
