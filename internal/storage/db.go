// Package storage keeps the book library: book text and metadata in SQLite
// plus the synthesized audio cache on disk.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("book not found")

// DB wraps the library database and the audio cache directory.
type DB struct {
	db       *sql.DB
	path     string
	audioDir string
	mu       sync.RWMutex
}

// Open opens or creates the library in dir.
func Open(dir string) (*DB, error) {
	dbPath := filepath.Join(dir, "library.db")
	audioDir := filepath.Join(dir, "audio")

	if err := os.MkdirAll(audioDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the inbox importer write while the viewer reads
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			text           TEXT NOT NULL,
			words          INTEGER DEFAULT 0,
			audio_path     TEXT DEFAULT '',
			length_seconds REAL DEFAULT 0,
			created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS books_created ON books(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create books table: %w", err)
	}

	// Migration: source column for books imported from the inbox (existing databases)
	db.Exec(`ALTER TABLE books ADD COLUMN source TEXT DEFAULT ''`)

	return &DB{db: db, path: dbPath, audioDir: audioDir}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// GetMeta reads a value from the internal key/value table.
func (d *DB) GetMeta(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var v string
	if err := d.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, key).Scan(&v); err != nil {
		return "", false
	}
	return v, true
}

// SetMeta stores a value in the internal key/value table.
func (d *DB) SetMeta(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, key, value)
	return err
}
