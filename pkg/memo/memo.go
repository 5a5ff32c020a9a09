// Package memo is the durable tier of the commentary memoizer: an
// exact-match store backed by SQLite, keyed by a stable hash of the
// position fingerprint, language, audience mode, and recommended move.
// Entries are never invalidated in place; staleness is checked against
// the TTL at read time.
package memo

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// Store is the SQLite-backed commentary memo store.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createMemoTable = `
CREATE TABLE IF NOT EXISTS memo_entries (
	composite_key TEXT PRIMARY KEY,
	commentary TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL
);
`

// New creates a Store at the given database path with a default TTL.
func New(dbPath string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open memo db: %w", err)
	}

	if _, err := db.Exec(createMemoTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate memo db: %w", err)
	}

	return &Store{db: db, ttl: ttl}, nil
}

// Key computes the composite memo key for one commentary request.
func Key(fingerprint, language, mode, move string) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(move))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the memoized commentary for key. Entries older than their
// TTL count as misses.
func (s *Store) Get(key string) (string, bool) {
	var commentary string
	var createdAt time.Time
	var ttlSeconds int64

	err := s.db.QueryRow(
		`SELECT commentary, created_at, ttl_seconds FROM memo_entries WHERE composite_key = ?`,
		key,
	).Scan(&commentary, &createdAt, &ttlSeconds)

	if err != nil {
		s.misses.Add(1)
		return "", false
	}

	if time.Since(createdAt) > time.Duration(ttlSeconds)*time.Second {
		s.misses.Add(1)
		return "", false
	}

	s.hits.Add(1)
	return commentary, true
}

// Put stores commentary under key, replacing any prior entry.
func (s *Store) Put(key, commentary string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO memo_entries (composite_key, commentary, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?)`,
		key, commentary, time.Now().UTC(), int64(s.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("memo put: %w", err)
	}
	return nil
}

// Stats returns memo store metrics.
func (s *Store) Stats() (models.MemoStats, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memo_entries`).Scan(&count)
	if err != nil {
		return models.MemoStats{}, fmt.Errorf("memo stats: %w", err)
	}
	return models.MemoStats{
		Entries: count,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Clear removes memo entries. If expiredOnly is true, only expired entries
// are removed.
func (s *Store) Clear(expiredOnly bool) error {
	var query string
	if expiredOnly {
		query = `DELETE FROM memo_entries WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	} else {
		query = `DELETE FROM memo_entries`
	}
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("memo clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
