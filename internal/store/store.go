// Package store provides storage backends for PsychIntake.
//
// Every backend is a flat key/value map scoped to one profile. The typed
// SessionStore in this package is the only component that knows the key set.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Key names a persisted value. The set is fixed.
type Key string

const (
	KeyAccessToken    Key = "access_token"
	KeyUserID         Key = "user_id"
	KeyUserName       Key = "user_name"
	KeyUserEmail      Key = "user_email"
	KeyUserRole       Key = "user_role"
	KeyPausedSession  Key = "paused_session"
	KeyLastReportID   Key = "last_report_id"
	KeyLastReportDate Key = "last_report_date"
	KeyTempUserID     Key = "temp_user_id"
)

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "default"

// Backend is a raw key/value store. Writes replace the whole value.
type Backend interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key Key) (value string, ok bool, err error)
	Set(ctx context.Context, key Key, value string) error
	Delete(ctx context.Context, key Key) error
	Close() error
}

// ExpiringBackend is implemented by backends that can expire a value natively.
type ExpiringBackend interface {
	Backend
	SetWithTTL(ctx context.Context, key Key, value string, ttl time.Duration) error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN     string
	Profile string
}

// Option defines a functional option for configuring stores.
type Option func(*Opts)

// WithDSN sets the data source name used to pick and open a backend.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisDSN sets the redis:// URL.
func WithRedisDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithProfile scopes all keys to the named profile.
func WithProfile(profile string) Option {
	return func(o *Opts) { o.Profile = profile }
}

func applyOpts(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	return cfg
}

// Backend type names returned by DetectDSNType.
const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite3"
	TypePostgres = "postgres"
	TypeRedis    = "redis"
)

// DetectDSNType determines the backend for a DSN.
// An empty DSN or "memory:" selects the in-memory store; anything that is not
// a recognized URL or connection string is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case lower == "" || lower == "memory:" || lower == ":memory:":
		return TypeMemory
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return TypePostgres
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return TypePostgres
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"), strings.HasPrefix(lower, "unix://"):
		return TypeRedis
	default:
		return TypeSQLite
	}
}

// Open creates the backend selected by the configured DSN.
func Open(opts ...Option) (Backend, error) {
	cfg := applyOpts(opts)
	kind := DetectDSNType(cfg.DSN)
	slog.Debug("store.Open: selecting backend", "type", kind, "profile", cfg.Profile, "DSN_set", cfg.DSN != "")
	switch kind {
	case TypeMemory:
		return NewInMemoryStore(), nil
	case TypePostgres:
		return NewPostgresStore(opts...)
	case TypeRedis:
		return NewRedisStore(opts...)
	case TypeSQLite:
		return NewSQLiteStore(opts...)
	default:
		return nil, fmt.Errorf("unsupported store type %q", kind)
	}
}

// InMemoryStore keeps values in a map. It is used by tests and ephemeral runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[Key]string)}
}

func (s *InMemoryStore) Get(_ context.Context, key Key) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemoryStore) Set(_ context.Context, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// Len returns the number of stored keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
