package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0700

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps one profile's values in a local SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	profile string
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "profile", cfg.Profile)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)

	return &SQLiteStore{db: db, profile: cfg.Profile}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE profile = ? AND key = ?`, s.profile, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "key", key)
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key Key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv_store (profile, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(profile, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.profile, string(key), value, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore Set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	slog.Debug("SQLiteStore Set succeeded", "key", key)
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE profile = ? AND key = ?`, s.profile, string(key)); err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
