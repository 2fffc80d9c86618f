package database

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/query"
)

const imageColumns = "images.id, images.relativePath, images.dateTaken"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*Image, error) {
	var (
		img  Image
		date string
	)
	if err := row.Scan(&img.ID, &img.RelativePath, &date); err != nil {
		return nil, err
	}
	t, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	img.DateTaken = t
	return &img, nil
}

func (d *Database) queryImages(ctx context.Context, q string, args ...any) ([]Image, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("error closing rows: %v", err)
		}
	}()

	images := []Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// FindByPath returns the image indexed under relativePath, or nil when
// the path is not indexed.
func (d *Database) FindByPath(ctx context.Context, relativePath string) (*Image, error) {
	done := observeQuery("find_by_path")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	img, err := scanImage(d.db.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE relativePath = ?", relativePath))
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	done(err)
	if err != nil {
		return nil, wrapErr("find_by_path", err)
	}
	return img, nil
}

// Insert indexes relativePath. It returns ErrDuplicatePath if the path is
// already present, including when a concurrent caller inserted it first.
func (d *Database) Insert(ctx context.Context, relativePath string, dateTaken time.Time) (*Image, error) {
	done := observeQuery("insert_image")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"INSERT INTO images (relativePath, dateTaken) VALUES (?, ?)",
		relativePath, formatDate(dateTaken))
	if err != nil {
		if isUniqueViolation(err) {
			done(nil)
			return nil, ErrDuplicatePath
		}
		done(err)
		return nil, wrapErr("insert_image", err)
	}

	id, err := result.LastInsertId()
	done(err)
	if err != nil {
		return nil, wrapErr("insert_image", err)
	}

	return &Image{
		ID:           id,
		RelativePath: relativePath,
		DateTaken:    dateTaken.UTC().Truncate(time.Millisecond),
	}, nil
}

// Delete removes the image at relativePath together with its tags. It
// reports whether a row existed.
func (d *Database) Delete(ctx context.Context, relativePath string) (bool, error) {
	done := observeQuery("delete_image")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM images WHERE relativePath = ?", relativePath)
	if err != nil {
		done(err)
		return false, wrapErr("delete_image", err)
	}

	n, err := result.RowsAffected()
	done(err)
	if err != nil {
		return false, wrapErr("delete_image", err)
	}
	return n > 0, nil
}

// DeleteUnder removes every image whose path lies below dirRelative and
// returns how many were removed. An empty dirRelative removes nothing.
func (d *Database) DeleteUnder(ctx context.Context, dirRelative string) (int64, error) {
	dirRelative = strings.Trim(path.Clean("/"+dirRelative), "/")
	if dirRelative == "" {
		return 0, nil
	}

	done := observeQuery("delete_under")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// substr instead of LIKE: LIKE is case-insensitive and treats % and _ as wildcards
	prefix := dirRelative + "/"
	result, err := d.db.ExecContext(ctx,
		"DELETE FROM images WHERE substr(relativePath, 1, ?) = ?",
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		done(err)
		return 0, wrapErr("delete_under", err)
	}

	n, err := result.RowsAffected()
	done(err)
	if err != nil {
		return 0, wrapErr("delete_under", err)
	}
	return n, nil
}

// GetByID returns an image with its tags, or ErrNotFound.
func (d *Database) GetByID(ctx context.Context, id int64) (*Image, error) {
	done := observeQuery("get_image")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	img, err := scanImage(d.db.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, ErrNotFound
	}
	if err != nil {
		done(err)
		return nil, wrapErr("get_image", err)
	}

	img.Tags, err = d.listTags(ctx, id)
	done(err)
	if err != nil {
		return nil, wrapErr("get_image", err)
	}
	return img, nil
}

// Query returns the images matching f ordered by capture time.
func (d *Database) Query(ctx context.Context, f query.Filter) ([]Image, error) {
	done := observeQuery("filter_images")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	q, args := query.Build(f)
	images, err := d.queryImages(ctx, q, args...)
	done(err)
	if err != nil {
		return nil, wrapErr("filter_images", err)
	}
	return images, nil
}

// ListUntagged returns images that carry no tag, ordered by capture time.
func (d *Database) ListUntagged(ctx context.Context) ([]Image, error) {
	done := observeQuery("list_untagged")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	images, err := d.queryImages(ctx, `
		SELECT `+imageColumns+`
		FROM images
		WHERE NOT EXISTS (SELECT 1 FROM tags WHERE tags.imageId = images.id)
		ORDER BY images.dateTaken ASC, images.id ASC
	`)
	done(err)
	if err != nil {
		return nil, wrapErr("list_untagged", err)
	}
	return images, nil
}

// ListByDateRange returns images captured within [start, end], inclusive.
func (d *Database) ListByDateRange(ctx context.Context, start, end time.Time) ([]Image, error) {
	done := observeQuery("list_by_date_range")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	images, err := d.queryImages(ctx, `
		SELECT `+imageColumns+`
		FROM images
		WHERE images.dateTaken >= ? AND images.dateTaken <= ?
		ORDER BY images.dateTaken ASC, images.id ASC
	`, formatDate(start), formatDate(end))
	done(err)
	if err != nil {
		return nil, wrapErr("list_by_date_range", err)
	}
	return images, nil
}

// ListPaths returns every indexed relative path.
func (d *Database) ListPaths(ctx context.Context) ([]string, error) {
	done := observeQuery("list_paths")

	d.mu.RLock()
	defer d.mu.RUnlock()

	// a full listing can outlast defaultTimeout on large libraries
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT relativePath FROM images ORDER BY relativePath")
	if err != nil {
		done(err)
		return nil, wrapErr("list_paths", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("error closing rows: %v", err)
		}
	}()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			done(err)
			return nil, wrapErr("list_paths", err)
		}
		paths = append(paths, p)
	}

	err = rows.Err()
	done(err)
	if err != nil {
		return nil, wrapErr("list_paths", err)
	}
	return paths, nil
}

// Count returns the number of indexed images.
func (d *Database) Count(ctx context.Context) (int, error) {
	done := observeQuery("count_images")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&n)
	done(err)
	if err != nil {
		return 0, wrapErr("count_images", err)
	}
	return n, nil
}
