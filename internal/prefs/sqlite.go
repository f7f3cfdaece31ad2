package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLite stores preferences in a single-table sqlite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the preference database at path.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create prefs dir")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply prefs schema")
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Brightness returns the stored brightness, or DefaultBrightness.
func (s *SQLite) Brightness(ctx context.Context) (int, error) {
	v, err := s.get(ctx, KeyBrightness)
	if errors.Is(err, ErrNotFound) {
		return DefaultBrightness, nil
	}
	if err != nil {
		return 0, err
	}
	return ClampBrightness(v), nil
}

// SetBrightness stores pct, clamped to the valid range.
func (s *SQLite) SetBrightness(ctx context.Context, pct int) error {
	return s.set(ctx, KeyBrightness, ClampBrightness(pct))
}

// AutoBrightness returns the stored switch, or false.
func (s *SQLite) AutoBrightness(ctx context.Context) (bool, error) {
	v, err := s.get(ctx, KeyAutoBrightness)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// SetAutoBrightness stores the switch.
func (s *SQLite) SetAutoBrightness(ctx context.Context, on bool) error {
	return s.set(ctx, KeyAutoBrightness, boolToInt(on))
}

func (s *SQLite) get(ctx context.Context, key string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(ErrNotFound, key)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", key)
	}
	return v, nil
}

func (s *SQLite) set(ctx context.Context, key string, v int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, v, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}
