package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/lasen/correction"
)

// Schema for the settings table. updated_at only ever grows, so
// MAX(updated_at) works as a change token.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const (
	keyProcessInputs          = "processInputs"
	keyProcessTextareas       = "processTextareas"
	keyProcessContentEditable = "processContentEditable"
	keyInstantCheck           = "instantCheck"
	keyDefaultDialect         = "defaultDialect"
)

// LoadSettings reads the settings bag. Missing keys keep their defaults;
// values that fail to decode are ignored.
func LoadSettings(ctx context.Context, db *sql.DB) (correction.Settings, error) {
	s := correction.DefaultSettings()
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return s, fmt.Errorf("config: load settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return s, fmt.Errorf("config: load settings: %w", err)
		}
		var target any
		switch key {
		case keyProcessInputs:
			target = &s.ProcessInputs
		case keyProcessTextareas:
			target = &s.ProcessTextareas
		case keyProcessContentEditable:
			target = &s.ProcessContentEditable
		case keyInstantCheck:
			target = &s.InstantCheck
		case keyDefaultDialect:
			target = &s.DefaultDialect
		default:
			continue
		}
		json.Unmarshal([]byte(value), target)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("config: load settings: %w", err)
	}
	return s.Normalize(), nil
}

// SaveSettings writes every key of s in one transaction.
func SaveSettings(ctx context.Context, db *sql.DB, s correction.Settings) error {
	s = s.Normalize()
	values := map[string]any{
		keyProcessInputs:          s.ProcessInputs,
		keyProcessTextareas:       s.ProcessTextareas,
		keyProcessContentEditable: s.ProcessContentEditable,
		keyInstantCheck:           s.InstantCheck,
		keyDefaultDialect:         s.DefaultDialect,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("config: save settings: %w", err)
	}
	defer tx.Rollback()

	var stamp int64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(?, COALESCE(MAX(updated_at), 0) + 1) FROM settings`,
		time.Now().UnixMilli()).Scan(&stamp); err != nil {
		return fmt.Errorf("config: save settings: %w", err)
	}
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("config: save settings: %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, string(raw), stamp); err != nil {
			return fmt.Errorf("config: save settings: %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("config: save settings: %w", err)
	}
	return nil
}

// SeedSettings writes s only when the table is empty.
func SeedSettings(ctx context.Context, db *sql.DB, s correction.Settings) error {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&n); err != nil {
		return fmt.Errorf("config: seed settings: %w", err)
	}
	if n > 0 {
		return nil
	}
	return SaveSettings(ctx, db, s)
}

func settingsVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), 0) FROM settings`).Scan(&v)
	return v, err
}
