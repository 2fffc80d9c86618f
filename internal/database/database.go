package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database is the index store.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the index at dbPath. The parent directory
// must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	done := observeQuery("initialize_schema")

	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		relativePath TEXT UNIQUE NOT NULL,
		dateTaken TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_images_dateTaken ON images(dateTaken);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		imageId INTEGER NOT NULL,
		tag TEXT NOT NULL,
		dateAdded DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (imageId) REFERENCES images(id) ON DELETE CASCADE,
		UNIQUE(imageId, tag)
	);

	CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := d.db.ExecContext(ctx, schema)
	if err != nil {
		done(err)
		return err
	}

	err = d.runMigrations(ctx)
	done(err)
	return err
}

// runMigrations upgrades databases created before tag timestamps existed.
func (d *Database) runMigrations(ctx context.Context) error {
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('tags')
		WHERE name='dateAdded'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for dateAdded column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding dateAdded column to tags table")

		// SQLite rejects non-constant defaults in ALTER TABLE ADD COLUMN
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE tags ADD COLUMN dateAdded DATETIME`); err != nil {
			return fmt.Errorf("failed to add dateAdded column: %w", err)
		}
		if _, err := d.db.ExecContext(ctx, `UPDATE tags SET dateAdded = CURRENT_TIMESTAMP WHERE dateAdded IS NULL`); err != nil {
			return fmt.Errorf("failed to initialize dateAdded values: %w", err)
		}

		logging.Info("Migration complete: dateAdded column added")
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// observeQuery starts timing an operation; call the returned func with the
// operation's error when it finishes.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		recordQuery(operation, start, err)
	}
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics records the on-disk size of the database files.
func (d *Database) UpdateDBMetrics() {
	files := map[string]string{
		"main": d.dbPath,
		"wal":  d.dbPath + "-wal",
		"shm":  d.dbPath + "-shm",
	}
	for label, path := range files {
		size := int64(0)
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		metrics.DBSizeBytes.WithLabelValues(label).Set(float64(size))
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only! Mode: %v", path, info.Mode())
		}
	}

	return nil
}
