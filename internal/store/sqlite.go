// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides fact/transcript persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS facts (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			value       TEXT NOT NULL,
			recorded_at DATETIME NOT NULL,
			source_turn INTEGER NOT NULL DEFAULT 0,

			CHECK (kind IN ('name', 'location', 'preference', 'background', 'other'))
		);

		CREATE INDEX IF NOT EXISTS idx_facts_kind_recorded
			ON facts(kind, recorded_at);

		CREATE TABLE IF NOT EXISTS transcript (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			turn        INTEGER NOT NULL,
			role        TEXT NOT NULL,
			sender      TEXT NOT NULL,
			agent_id    TEXT,
			content     TEXT NOT NULL,
			out_of_band INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL,

			CHECK (role IN ('system', 'user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_session_created
			ON transcript(session_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveFact appends a fact row. Facts are never overwritten; the
// authoritative value per kind is resolved at read time by recency.
func (s *SQLiteStore) SaveFact(ctx context.Context, fact *Fact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, kind, value, recorded_at, source_turn)
		VALUES (?, ?, ?, ?, ?)`,
		fact.ID, string(fact.Kind), fact.Value, fact.RecordedAt.UTC(), fact.SourceTurn,
	)
	if err != nil {
		return fmt.Errorf("saving fact: %w", err)
	}
	return nil
}

// ListFacts returns all facts ordered oldest first.
func (s *SQLiteStore) ListFacts(ctx context.Context) ([]*Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, value, recorded_at, source_turn
		FROM facts
		ORDER BY recorded_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	var facts []*Fact
	for rows.Next() {
		var f Fact
		var kind string
		var recordedAt time.Time
		if err := rows.Scan(&f.ID, &kind, &f.Value, &recordedAt, &f.SourceTurn); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		f.Kind = FactKind(kind)
		f.RecordedAt = recordedAt
		facts = append(facts, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facts: %w", err)
	}
	return facts, nil
}

// WipeFacts deletes all facts. Callers must confirm with the observer
// before invoking this.
func (s *SQLiteStore) WipeFacts(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts`)
	if err != nil {
		return fmt.Errorf("wiping facts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Info("facts wiped", "deleted", n)
	}
	return nil
}

// SaveTranscriptEntry appends one conversation message.
func (s *SQLiteStore) SaveTranscriptEntry(ctx context.Context, entry *TranscriptEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript (id, session_id, turn, role, sender, agent_id, content, out_of_band, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.Turn, entry.Role, entry.Sender,
		nullable(entry.AgentID), entry.Content, boolToInt(entry.OutOfBand), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving transcript entry: %w", err)
	}
	return nil
}

// ListTranscript returns up to limit entries for a session, oldest first.
// Empty sessionID spans all sessions; limit <= 0 returns everything.
func (s *SQLiteStore) ListTranscript(ctx context.Context, sessionID string, limit int) ([]*TranscriptEntry, error) {
	query := `
		SELECT id, session_id, turn, role, sender, agent_id, content, out_of_band, created_at
		FROM transcript`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transcript: %w", err)
	}
	defer rows.Close()

	var entries []*TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		var agentID sql.NullString
		var oob int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Turn, &e.Role, &e.Sender,
			&agentID, &e.Content, &oob, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transcript entry: %w", err)
		}
		e.AgentID = agentID.String
		e.OutOfBand = oob != 0
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
