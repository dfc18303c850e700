// Package db is the SQLite placement journal: one row per placement attempt,
// grouped into tracking sessions.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the journal database handle.
type DB struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// OpenDB opens the database at path and applies connection pragmas without
// touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps pragmas and writes on one SQLite handle.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}
