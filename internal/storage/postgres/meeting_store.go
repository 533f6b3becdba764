// Package postgres provides the Postgres-backed meeting record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

const (
	defaultTable       = "meeting_summaries"
	uniqueViolationSQL = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for meeting records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// MeetingStore is both the existence oracle and the persister.
type MeetingStore struct {
	pool  pool
	table string
}

// NewMeetingStore connects a pool using the provided config.
func NewMeetingStore(ctx context.Context, cfg Config) (*MeetingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MeetingStore{pool: p, table: table}, nil
}

// NewMeetingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMeetingStoreWithPool(p pool, table string) (*MeetingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &MeetingStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *MeetingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *MeetingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the record table and its date index when missing.
func (s *MeetingStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL UNIQUE,
	meeting_title TEXT NOT NULL,
	meeting_date DATE NOT NULL,
	summary TEXT NOT NULL,
	original_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_meeting_date_idx ON %s (meeting_date DESC)`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ExistingIDs returns which of ids already have a record, using one query.
// Any failure wraps meeting.ErrOracleUnavailable.
func (s *MeetingStore) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}
	query := fmt.Sprintf(`SELECT document_id FROM %s WHERE document_id = ANY($1)`, s.table)
	rows, err := s.pool.Query(ctx, query, ids)
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

// Save inserts one record. A duplicate document id returns meeting.ErrConflict; other
// failures return *meeting.PersistError.
func (s *MeetingStore) Save(ctx context.Context, record meeting.Record) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	document_id,
	meeting_title,
	meeting_date,
	summary,
	original_url,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6
)
ON CONFLICT (document_id) DO NOTHING`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		record.DocumentID,
		record.MeetingTitle,
		record.MeetingDate,
		record.Summary,
		record.OriginalURL,
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQL {
			return fmt.Errorf("insert %s: %w", record.DocumentID, meeting.ErrConflict)
		}
		return &meeting.PersistError{Err: fmt.Errorf("insert %s: %w", record.DocumentID, err)}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert %s: %w", record.DocumentID, meeting.ErrConflict)
	}
	return nil
}
