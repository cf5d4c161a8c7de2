package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces every key written by the client.
const RedisKeyPrefix = "psychintake"

// RedisStore keeps profile values in Redis. Paused sessions expire natively.
type RedisStore struct {
	rdb     *redis.Client
	profile string
}

// NewRedisStore connects to the redis:// URL in the options.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("RedisStore.NewRedisStore: creating Redis store", "DSN_set", cfg.DSN != "", "profile", cfg.Profile)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis DSN not set")
	}
	ropts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		return nil, fmt.Errorf("invalid redis DSN: %w", err)
	}
	rdb := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisStore{rdb: rdb, profile: cfg.Profile}, nil
}

func (s *RedisStore) key(k Key) string {
	return RedisKeyPrefix + ":" + s.profile + ":" + string(k)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (string, bool, error) {
	value, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		slog.Error("RedisStore Get failed", "error", err, "key", key)
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, value string) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL writes value and lets Redis drop it after ttl. Zero means no expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key Key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		slog.Error("RedisStore Set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	slog.Debug("RedisStore Set succeeded", "key", key, "ttl", ttl)
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		slog.Error("RedisStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
