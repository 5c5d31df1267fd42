// Package diagnostics persists the Semantic Lock's (internal/lock,
// C8) last known-good baseline diagnostic signatures per file path,
// keyed by a content hash, so a transaction touching an unchanged
// file can skip a redundant baseline diagnostics fetch from the
// backend (the document is still opened). It is deliberately not a request-history store: only the
// latest signature set per path is retained, never a log.
package diagnostics

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// CurrentVersion is the cache's schema version.
const CurrentVersion = 1

// Signature mirrors the Semantic Lock's internal diagnostic
// signature shape, exported here so callers can round-trip it through
// the cache without the lock package depending on diagnostics.
type Signature struct {
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Severity  int    `json:"severity"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

// Cache wraps a sqlite-backed store of per-path baseline signatures.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("diagnostics: set journal mode: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func initSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("diagnostics: begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("diagnostics: create schema_version table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS diagnostics_baseline (
			path          TEXT PRIMARY KEY,
			content_hash  TEXT NOT NULL,
			signatures    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("diagnostics: create diagnostics_baseline table: %w", err)
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("diagnostics: query schema_version: %w", err)
	}
	if count == 0 {
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentVersion); err != nil {
			return fmt.Errorf("diagnostics: set schema version: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// HashContent computes the content hash Lookup/Store key baselines by.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached baseline signatures for path, if present
// and still valid for contentHash. ok is false on a cache miss or a
// stale entry (content changed since the entry was stored); callers
// fall back to fetching a fresh baseline from the backend in either
// case.
func (c *Cache) Lookup(path, contentHash string) (sigs []Signature, ok bool, err error) {
	var storedHash, payload string
	row := c.db.QueryRow(
		"SELECT content_hash, signatures FROM diagnostics_baseline WHERE path = ?", path,
	)
	if err := row.Scan(&storedHash, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("diagnostics: lookup %s: %w", path, err)
	}
	if storedHash != contentHash {
		return nil, false, nil
	}
	if err := json.Unmarshal([]byte(payload), &sigs); err != nil {
		return nil, false, fmt.Errorf("diagnostics: decode cached signatures for %s: %w", path, err)
	}
	return sigs, true, nil
}

// Store persists sigs as the latest baseline for path at contentHash,
// replacing any prior entry for the same path.
func (c *Cache) Store(path, contentHash string, sigs []Signature) error {
	payload, err := json.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("diagnostics: encode signatures for %s: %w", path, err)
	}

	_, err = c.db.Exec(`
		INSERT INTO diagnostics_baseline (path, content_hash, signatures, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			signatures   = excluded.signatures,
			updated_at   = excluded.updated_at
	`, path, contentHash, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("diagnostics: store %s: %w", path, err)
	}
	return nil
}

// Invalidate removes any cached baseline for path, e.g. after a
// Delete ContentChange.
func (c *Cache) Invalidate(path string) error {
	if _, err := c.db.Exec("DELETE FROM diagnostics_baseline WHERE path = ?", path); err != nil {
		return fmt.Errorf("diagnostics: invalidate %s: %w", path, err)
	}
	return nil
}
