package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade an existing database one user_version at a time;
// migrations[i] moves a database from version i to i+1.
var migrations = []func(*sql.Tx) error{
	// 1: per-schedule listings
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_schedule ON runs(schedule_id, started_seq)`)
		return err
	},
	// 2: run filters by terminal state
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state, started_seq)`)
		return err
	},
}

// Store provides durable storage for run traces.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and applies
// pragmas and migrations. It is safe to call repeatedly on the same file.
// The path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	// SQLite supports one writer at a time. A single connection also keeps
	// ":memory:" databases from splitting into one database per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LastSeq returns the highest logical seq recorded in any table, so a new
// engine clock can resume after it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(started_seq) FROM runs), 0),
			COALESCE((SELECT MAX(finished_seq) FROM runs), 0),
			COALESCE((SELECT MAX(seq) FROM visits), 0),
			COALESCE((SELECT MAX(seq) FROM marks), 0)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

var pragmas = []string{
	"journal_mode = WAL",
	"synchronous = NORMAL",
	"busy_timeout = 5000",
	"foreign_keys = ON",
}

func applyPragmas(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec("PRAGMA " + p); err != nil {
			return fmt.Errorf("pragma %s: %w", p, err)
		}
	}
	return nil
}

// applySchema creates missing tables and then applies any migrations
// newer than the database's user_version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if err := migrate(db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

// migrate runs step and bumps user_version to version in one transaction.
func migrate(db *sql.DB, version int, step func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	defer tx.Rollback()

	if err := step(tx); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version %d: %w", version, err)
	}
	return tx.Commit()
}

// verifyPragma reports an error unless PRAGMA name reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("pragma %s is %q, want %q", name, value, expected)
	}
	return nil
}
