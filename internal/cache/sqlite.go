package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore persists cache entries in a SQLite file so warm data
// survives server restarts. Expiry is enforced on read; Sweep trims
// what reads never touch.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the cache database under dir,
// applies the usual pragmas and runs the schema migration.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cache: create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "cache.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("cache: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("cache: migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the payload for key if present and not expired. Expired
// rows are deleted on the spot.
func (s *SQLiteStore) Get(key string, now time.Time) ([]byte, bool, error) {
	var payload []byte
	var expiresAt int64
	err := s.db.QueryRow(
		"SELECT payload, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %q: %w", key, err)
	}

	if expiresAt <= now.UnixMilli() {
		if _, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key); err != nil {
			return nil, false, fmt.Errorf("cache: evict %q: %w", key, err)
		}
		return nil, false, nil
	}
	return payload, true, nil
}

// Set stores payload under key until expiresAt, replacing any previous
// entry.
func (s *SQLiteStore) Set(key string, payload []byte, expiresAt time.Time) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache_entries (key, payload, expires_at) VALUES (?, ?, ?)",
		key, payload, expiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache: write %q: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// Clear removes all entries.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

// Sweep deletes every row expired as of now and reports the count.
func (s *SQLiteStore) Sweep(now time.Time) (int, error) {
	res, err := s.db.Exec("DELETE FROM cache_entries WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: sweep count: %w", err)
	}
	return int(n), nil
}

// Len counts the rows still live as of now.
func (s *SQLiteStore) Len(now time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?", now.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
