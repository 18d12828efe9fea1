package modules

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/glebarez/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS modules (
	path   TEXT PRIMARY KEY,
	source BLOB NOT NULL
)`

// SQLiteSource serves module files stored as rows of a SQLite table, keyed
// by absolute slash-separated path. Directories exist implicitly whenever a
// stored path lies below them.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens (creating if needed) the module store at dsn.
// Use ":memory:" for a throwaway store.
func NewSQLiteSource(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening module store %q: %w", dsn, err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating module table: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Put stores or replaces the module text at path.
func (s *SQLiteSource) Put(path string, source []byte) error {
	key, err := s.Realpath(path)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO modules(path, source) VALUES(?, ?)
		ON CONFLICT(path) DO UPDATE SET source = excluded.source`, key, source)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// Delete removes the module stored at path.
func (s *SQLiteSource) Delete(path string) error {
	key, err := s.Realpath(path)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM modules WHERE path = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteSource) Close() error { return s.db.Close() }

func (s *SQLiteSource) Stat(path string) Kind {
	key, err := s.Realpath(path)
	if err != nil {
		return KindMissing
	}
	var one int
	err = s.db.QueryRow(`SELECT 1 FROM modules WHERE path = ?`, key).Scan(&one)
	if err == nil {
		return KindFile
	}
	// Every path below key/ sorts between "key/" and "key0".
	lower := key + "/"
	if key == "/" {
		lower = "/"
	}
	upper := lower[:len(lower)-1] + "0"
	err = s.db.QueryRow(`SELECT 1 FROM modules WHERE path > ? AND path < ? LIMIT 1`, lower, upper).Scan(&one)
	if err == nil {
		return KindDir
	}
	return KindMissing
}

func (s *SQLiteSource) ReadFile(path string) ([]byte, error) {
	key, err := s.Realpath(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRow(`SELECT source FROM modules WHERE path = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading %s: %w", key, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Realpath cleans path. Stored modules have no symlinks, so cleaning is
// enough to canonicalize.
func (s *SQLiteSource) Realpath(path string) (string, error) {
	p := filepath.ToSlash(filepath.Clean(path))
	if len(p) == 0 || p[0] != '/' {
		return "", fmt.Errorf("module store paths must be absolute: %q", path)
	}
	return p, nil
}
