// Package store persists correction records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/dbopen"
)

// Schema creates the corrections table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS corrections (
	id             TEXT PRIMARY KEY,
	original_text  TEXT NOT NULL,
	corrected_text TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT 'extension'
		CHECK (source IN ('extension','api','api-dialect','other')),
	dialect        TEXT NOT NULL DEFAULT ''
		CHECK (dialect IN ('','egyptian','levantine','gulf','moroccan')),
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_corrections_created ON corrections(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_corrections_original ON corrections(original_text);
`

// ErrInvalidRecord is returned by Insert for records missing text or with
// an unknown source or dialect.
var ErrInvalidRecord = errors.New("store: invalid record")

// Store is the correction history database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Insert stores r. A missing ID gets a UUIDv7, a zero CreatedAt gets the
// current time, and an empty source defaults to extension.
func (s *Store) Insert(ctx context.Context, r *correction.Record) error {
	if r.OriginalText == "" || r.CorrectedText == "" {
		return fmt.Errorf("%w: original and corrected text required", ErrInvalidRecord)
	}
	if r.Source == "" {
		r.Source = correction.SourceExtension
	}
	if !r.Source.Valid() {
		return fmt.Errorf("%w: source %q", ErrInvalidRecord, r.Source)
	}
	if r.Dialect != "" && !r.Dialect.Valid() {
		return fmt.Errorf("%w: dialect %q", ErrInvalidRecord, r.Dialect)
	}
	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("store: new id: %w", err)
		}
		r.ID = id.String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO corrections (id, original_text, corrected_text, source, dialect, created_at)
		VALUES (?,?,?,?,?,?)`,
		r.ID, r.OriginalText, r.CorrectedText, string(r.Source), string(r.Dialect), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// List returns one page of records, newest first, and the total count.
// page starts at 1.
func (s *Store) List(ctx context.Context, page, limit int) ([]correction.Record, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	total, err := s.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, original_text, corrected_text, source, dialect, created_at
		FROM corrections
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := make([]correction.Record, 0, limit)
	for rows.Next() {
		var (
			r               correction.Record
			source, dialect string
			createdAt       int64
		)
		if err := rows.Scan(&r.ID, &r.OriginalText, &r.CorrectedText, &source, &dialect, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("store: scan: %w", err)
		}
		r.Source = correction.Source(source)
		r.Dialect = correction.Dialect(dialect)
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: list: %w", err)
	}
	return out, total, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM corrections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
