// Package sqlite provides a SQLite-backed meeting record store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config locates the database file.
type Config struct {
	DSN   string
	Table string
}

// MeetingStore is the SQLite existence oracle and persister.
type MeetingStore struct {
	db    *sql.DB
	table string
}

// Open opens (or creates) the database file.
func Open(ctx context.Context, cfg Config) (*MeetingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "meeting_summaries"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &MeetingStore{db: db, table: table}, nil
}

// Close releases the database handle.
func (s *MeetingStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// EnsureSchema creates the record table and its date index when missing.
func (s *MeetingStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL UNIQUE,
	meeting_title TEXT NOT NULL,
	meeting_date TEXT NOT NULL,
	summary TEXT NOT NULL,
	original_url TEXT NOT NULL,
	created_at TEXT NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_meeting_date_idx ON %s (meeting_date DESC)`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ExistingIDs returns which of ids already have a record, using one query.
func (s *MeetingStore) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT document_id FROM %s WHERE document_id IN (%s)`, s.table, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query existing ids: %w", meeting.ErrOracleUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan existing id: %w", meeting.ErrOracleUnavailable, err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read existing ids: %w", meeting.ErrOracleUnavailable, err)
	}
	return existing, nil
}

// Save inserts one record; a duplicate document id returns meeting.ErrConflict.
func (s *MeetingStore) Save(ctx context.Context, record meeting.Record) error {
	query := fmt.Sprintf(`
INSERT INTO %s (document_id, meeting_title, meeting_date, summary, original_url, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (document_id) DO NOTHING`, s.table)

	res, err := s.db.ExecContext(ctx, query,
		record.DocumentID,
		record.MeetingTitle,
		record.MeetingDate.Format(meeting.DateLayout),
		record.Summary,
		record.OriginalURL,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &meeting.PersistError{Err: fmt.Errorf("insert %s: %w", record.DocumentID, err)}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &meeting.PersistError{Err: fmt.Errorf("insert %s: rows affected: %w", record.DocumentID, err)}
	}
	if affected == 0 {
		return fmt.Errorf("insert %s: %w", record.DocumentID, meeting.ErrConflict)
	}
	return nil
}

// Get loads one record by document id. It returns sql.ErrNoRows when absent.
func (s *MeetingStore) Get(ctx context.Context, documentID string) (meeting.Record, error) {
	query := fmt.Sprintf(`
SELECT document_id, meeting_title, meeting_date, summary, original_url, created_at
FROM %s WHERE document_id = ?`, s.table)

	var (
		rec       meeting.Record
		date      string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, documentID).
		Scan(&rec.DocumentID, &rec.MeetingTitle, &date, &rec.Summary, &rec.OriginalURL, &createdAt)
	if err != nil {
		return meeting.Record{}, fmt.Errorf("get %s: %w", documentID, err)
	}
	if rec.MeetingDate, err = time.Parse(meeting.DateLayout, date); err != nil {
		return meeting.Record{}, fmt.Errorf("parse meeting_date %q: %w", date, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return meeting.Record{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return rec, nil
}
