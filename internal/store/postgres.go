package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps profile values in a shared database, for kiosk devices
// that must not keep patient state on local disk.
type PostgresStore struct {
	db      *sql.DB
	profile string
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "", "profile", cfg.Profile)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, profile: cfg.Profile}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE profile = $1 AND key = $2`, s.profile, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "key", key)
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key Key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv_store (profile, key, value, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		s.profile, string(key), value)
	if err != nil {
		slog.Error("PostgresStore Set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	slog.Debug("PostgresStore Set succeeded", "key", key)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE profile = $1 AND key = $2`, s.profile, string(key)); err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
