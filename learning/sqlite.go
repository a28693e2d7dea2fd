package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/arbiterlabs/arbiter/core"
)

// SQLiteStore is a core.LearningStore backed by a local SQLite database, so
// patterns survive process restarts without an external service.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open creates (or opens) the database at path, creating parent directories
// and running migrations as needed.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent reads while the learning phase writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id   TEXT PRIMARY KEY,
	results  TEXT NOT NULL,
	stored   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE TABLE IF NOT EXISTS patterns (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	agent       TEXT NOT NULL,
	domain      TEXT,
	description TEXT NOT NULL,
	confidence  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patterns_agent ON patterns(agent);
CREATE INDEX IF NOT EXISTS idx_patterns_domain ON patterns(domain);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate learning schema: %w", err)
	}
	return nil
}

// Persist implements core.LearningStore. The whole write is one transaction
// so a failed run record never leaves orphaned patterns.
func (s *SQLiteStore) Persist(ctx context.Context, runID string, results map[string]core.AgentResult, patterns []core.Pattern) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin learning tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, results) VALUES (?, ?)`,
		runID, string(encoded)); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	for _, p := range patterns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO patterns (run_id, agent, domain, description, confidence) VALUES (?, ?, ?, ?, ?)`,
			runID, p.Agent, nullString(p.Domain), p.Description, p.Confidence); err != nil {
			return fmt.Errorf("insert pattern for %s: %w", p.Agent, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit learning tx: %w", err)
	}
	return nil
}

// PatternsFor returns the persisted patterns of one agent, newest run first.
func (s *SQLiteStore) PatternsFor(ctx context.Context, agent string) ([]core.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.agent, COALESCE(p.domain, ''), p.description, p.confidence
		 FROM patterns p JOIN runs r ON r.run_id = p.run_id
		 WHERE p.agent = ? ORDER BY r.stored DESC, p.id DESC`, agent)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []core.Pattern
	for rows.Next() {
		var p core.Pattern
		if err := rows.Scan(&p.Agent, &p.Domain, &p.Description, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// RunCount returns the number of persisted runs.
func (s *SQLiteStore) RunCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// nullString treats empty as NULL for optional columns.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
