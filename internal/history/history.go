// Package history provides a SQLite-backed record of validation attempts.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/diagnostics"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS validations (
	id          TEXT PRIMARY KEY,
	uri         TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	diagnostics TEXT NOT NULL DEFAULT '[]',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_checksum ON validations(checksum);
CREATE INDEX IF NOT EXISTS idx_validations_created ON validations(created_at);
`

const defaultRetention = 200

// Recorder defines the interface for history operations. Consumers should
// depend on this interface rather than the concrete *DB type.
type Recorder interface {
	Record(rec models.ValidationRecord) error
	Recent(limit, offset int, query string) ([]models.ValidationSummary, int, error)
	Get(id string) (*models.ValidationRecord, error)
	LastForChecksum(checksum string) (*models.ValidationRecord, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies Recorder at compile time.
var _ Recorder = (*DB)(nil)

// DB wraps a sql.DB with history-specific operations.
type DB struct {
	conn      *sql.DB
	retention int
}

// Open opens (or creates) the SQLite database and applies the schema.
// retention bounds how many rows are kept; values <= 0 use the default.
func Open(dsn string, retention int) (*DB, error) {
	if retention <= 0 {
		retention = defaultRetention
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn, retention: retention}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record inserts one validation attempt and prunes rows beyond retention.
func (db *DB) Record(rec models.ValidationRecord) error {
	diagsJSON, err := json.Marshal(nonNilDiags(rec.Diagnostics))
	if err != nil {
		return fmt.Errorf("history: marshal diagnostics: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO validations (id, uri, checksum, outcome, detail, diagnostics, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.URI, rec.Checksum, rec.Outcome, rec.Detail, string(diagsJSON), rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}

	// Keep the newest rows only.
	_, _ = tx.Exec(`
		DELETE FROM validations WHERE id NOT IN (
			SELECT id FROM validations ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, db.retention)

	return tx.Commit()
}

// Recent returns summaries ordered newest first, with an optional substring
// filter over uri, detail, and diagnostic messages.
func (db *DB) Recent(limit, offset int, query string) ([]models.ValidationSummary, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	like := "%" + query + "%"

	var total int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM validations
		WHERE (? = '' OR uri LIKE ? OR detail LIKE ? OR diagnostics LIKE ?)
	`, query, like, like, like).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("history: count: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, uri, checksum, outcome, diagnostics, created_at FROM validations
		WHERE (? = '' OR uri LIKE ? OR detail LIKE ? OR diagnostics LIKE ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, query, like, like, like, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []models.ValidationSummary
	for rows.Next() {
		var (
			s         models.ValidationSummary
			diagsJSON string
		)
		if err := rows.Scan(&s.ID, &s.URI, &s.Checksum, &s.Outcome, &diagsJSON, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		s.Diagnostics = countDiags(diagsJSON)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Get returns one full record, or apperr.ErrNotFound.
func (db *DB) Get(id string) (*models.ValidationRecord, error) {
	return db.scanOne(db.conn.QueryRow(`
		SELECT id, uri, checksum, outcome, detail, diagnostics, duration_ms, created_at
		FROM validations WHERE id = ?
	`, id))
}

// LastForChecksum returns the newest attempt recorded for the given content
// digest, or apperr.ErrNotFound. Informational only: a hit never replaces a
// fresh validation.
func (db *DB) LastForChecksum(checksum string) (*models.ValidationRecord, error) {
	return db.scanOne(db.conn.QueryRow(`
		SELECT id, uri, checksum, outcome, detail, diagnostics, duration_ms, created_at
		FROM validations WHERE checksum = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, checksum))
}

// Count returns how many attempts are stored.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM validations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

func (db *DB) scanOne(row *sql.Row) (*models.ValidationRecord, error) {
	var (
		rec       models.ValidationRecord
		diagsJSON string
	)
	err := row.Scan(&rec.ID, &rec.URI, &rec.Checksum, &rec.Outcome, &rec.Detail, &diagsJSON, &rec.DurationMS, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(diagsJSON), &rec.Diagnostics); err != nil {
		rec.Diagnostics = nil
	}
	return &rec, nil
}

func countDiags(diagsJSON string) int {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(diagsJSON), &raw); err != nil {
		return 0
	}
	return len(raw)
}

func nonNilDiags(d []diagnostics.Diagnostic) []diagnostics.Diagnostic {
	if d == nil {
		return []diagnostics.Diagnostic{}
	}
	return d
}
