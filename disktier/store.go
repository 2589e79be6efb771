package disktier

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/c360/tiercache/errors"
	"github.com/c360/tiercache/pkg/retry"
)

// Options configures a Store.
type Options struct {
	// MaxEntries bounds the table by row count. Zero means unbounded.
	MaxEntries int

	// Clock overrides time.Now for expiry checks. Tests inject a fake.
	Clock func() time.Time

	// Logger receives warnings about discarded entries and recovery.
	// Defaults to slog.Default.
	Logger *slog.Logger
}

// Store persists cache entries in SQLite.
type Store struct {
	db         *sql.DB
	path       string
	maxEntries int
	clock      func() time.Time
	logger     *slog.Logger
}

// Open opens a SQLite cache store at path and applies embedded migrations.
// A corrupted database file is wiped and recreated once, trading cached
// data for a working store.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"disktier", "Open", "storage path is required")
	}
	cleanPath := filepath.Clean(path)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	db, err := openAndMigrate(cleanPath)
	if err != nil {
		if !isCorrupt(err) {
			return nil, errors.WrapTransient(err, "disktier", "Open", "open cache database")
		}

		logger.Warn("cache database corrupted, recreating",
			"path", cleanPath, "error", err)
		if wipeErr := wipeDatabase(cleanPath); wipeErr != nil {
			return nil, errors.WrapFatal(wipeErr, "disktier", "Open", "remove corrupted database")
		}

		db, err = openAndMigrate(cleanPath)
		if err != nil {
			return nil, errors.WrapFatal(err, "disktier", "Open", "recreate cache database")
		}
	}

	return &Store{
		db:         db,
		path:       cleanPath,
		maxEntries: opts.MaxEntries,
		clock:      clock,
		logger:     logger,
	}, nil
}

// openAndMigrate opens the database, verifies it is reachable, and applies
// migrations. Lock contention from a concurrent opener is retried briefly;
// corruption is surfaced immediately.
func openAndMigrate(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"

	return retry.DoWithResult(context.Background(), retry.Quick(), func() (*sql.DB, error) {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, retry.NonRetryable(err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			if isCorrupt(err) {
				return nil, retry.NonRetryable(err)
			}
			return nil, err
		}
		if err := applyMigrations(db, migrationsFS()); err != nil {
			_ = db.Close()
			if isCorrupt(err) {
				return nil, retry.NonRetryable(err)
			}
			return nil, err
		}
		return db, nil
	})
}

// wipeDatabase removes the database file along with its WAL sidecars.
func wipeDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Get retrieves and decodes the entry for key. An expired or undecodable
// row is deleted and reported as a miss, not an error.
func Get[V any](ctx context.Context, s *Store, key string, decode func([]byte) (V, error)) (V, bool, error) {
	var zero V

	raw, cachedAt, ttl, found, err := s.getRaw(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}

	if ttl > 0 && s.clock().After(cachedAt.Add(ttl)) {
		if err := s.deleteQuiet(ctx, key); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}

	value, err := decode(raw)
	if err != nil {
		// A row we can no longer decode is useless; drop it so the next
		// read refetches instead of failing forever.
		s.logger.Warn("discarding undecodable cache entry",
			"key", key, "error", err)
		if delErr := s.deleteQuiet(ctx, key); delErr != nil {
			return zero, false, delErr
		}
		return zero, false, nil
	}

	return value, true, nil
}

func (s *Store) getRaw(ctx context.Context, key string) ([]byte, time.Time, time.Duration, bool, error) {
	const query = `SELECT value, cached_at, ttl_ms FROM cache_entries WHERE key = ?`

	var (
		raw      []byte
		cachedAt int64
		ttlMS    int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw, &cachedAt, &ttlMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, 0, false, nil
		}
		return nil, time.Time{}, 0, false,
			errors.WrapTransient(err, "disktier", "Get", "query cache entry")
	}

	return raw, time.UnixMilli(cachedAt).UTC(), time.Duration(ttlMS) * time.Millisecond, true, nil
}

// Put stores an encoded value under key, overwriting any previous entry.
// If the store is bounded and full, the oldest entries by write time are
// evicted to make room.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"disktier", "Put", "key cannot be empty")
	}

	const upsert = `
INSERT INTO cache_entries (key, value, cached_at, ttl_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    value = excluded.value,
    cached_at = excluded.cached_at,
    ttl_ms = excluded.ttl_ms`

	_, err := s.db.ExecContext(ctx, upsert,
		key, value, s.clock().UTC().UnixMilli(), ttl.Milliseconds())
	if err != nil {
		return errors.WrapTransient(err, "disktier", "Put", "write cache entry")
	}

	if s.maxEntries > 0 {
		if err := s.evictOldest(ctx); err != nil {
			return err
		}
	}
	return nil
}

// evictOldest deletes rows beyond the entry limit, oldest write first.
func (s *Store) evictOldest(ctx context.Context) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	excess := count - s.maxEntries
	if excess <= 0 {
		return nil
	}

	const evict = `
DELETE FROM cache_entries WHERE key IN (
    SELECT key FROM cache_entries ORDER BY cached_at ASC, key ASC LIMIT ?
)`
	if _, err := s.db.ExecContext(ctx, evict, excess); err != nil {
		return errors.WrapTransient(err, "disktier", "Put", "evict oldest entries")
	}
	return nil
}

// Delete removes the entry for key. Returns true if a row was deleted.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return false, errors.WrapTransient(err, "disktier", "Delete", "delete cache entry")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapTransient(err, "disktier", "Delete", "read rows affected")
	}
	return affected > 0, nil
}

func (s *Store) deleteQuiet(ctx context.Context, key string) error {
	_, err := s.Delete(ctx, key)
	return err
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return errors.WrapTransient(err, "disktier", "Clear", "delete all entries")
	}
	return nil
}

// Count returns the number of stored entries, including ones whose TTL has
// elapsed but that have not been read since.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cache_entries`).Scan(&count)
	if err != nil {
		return 0, errors.WrapTransient(err, "disktier", "Count", "count entries")
	}
	return count, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isCorrupt reports whether err indicates an unreadable database file.
func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_CORRUPT, sqlite3lib.SQLITE_NOTADB:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "file is not a database") ||
		strings.Contains(message, "database disk image is malformed")
}
