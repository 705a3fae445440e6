package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Per-connection settings, applied by the driver to every connection it
// opens. See the package doc for what each one buys.
const dsnParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1"

// migrations upgrade a database from user_version i to i+1. schema.sql
// always creates the version 0 tables.
var migrations = []func(*sql.Tx) error{
	// 1: artifacts by codegen hash, for cache lookups across renames.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_artifacts_codegen ON artifacts(codegen_hash)`)
		return err
	},
	// 2: artifacts by output path, for ArtifactReferenced.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_artifacts_path ON artifacts(artifact_path)`)
		return err
	},
}

// Store is the build cache and cycle history of one mods tree.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache at path and brings its schema up to
// date. Use ":memory:" for a throwaway cache. Opening the same file again
// is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open build cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open build cache %s: %w", path, err)
	}

	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database. A zero Store closes cleanly.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create cache tables: %w", err)
	}

	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read cache version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("build cache version %d is newer than this engine (%d)", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate cache to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate cache to v%d: %w", v+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate cache to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate cache to v%d: %w", v+1, err)
		}
	}
	return nil
}

// verifyPragma checks a pragma's current value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
