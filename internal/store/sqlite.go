// ABOUTME: SQLite event ledger using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL and creates the schema on first use

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists operation events.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the ledger at path. Parent directories
// are created if needed; ":memory:" opens a private in-memory ledger.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("event ledger initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS operation_events (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id        TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			collection_id   TEXT NOT NULL DEFAULT '',
			operation       TEXT NOT NULL DEFAULT '',
			file_id         TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			contributor_id  TEXT NOT NULL DEFAULT '',
			response_code   TEXT NOT NULL DEFAULT '',
			info            TEXT NOT NULL DEFAULT '',
			contributors    TEXT,
			payload_json    TEXT,
			ts              TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_operation_events_conversation
			ON operation_events(conversation_id, seq);

		CREATE INDEX IF NOT EXISTS idx_operation_events_type
			ON operation_events(type, ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
