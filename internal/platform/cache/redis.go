package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

const defaultPrefix = "fhirsearch:snapshot"

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rc, nil
}

// RedisIDCache keeps search snapshots in redis as JSON, one key per token.
type RedisIDCache struct {
	rc     *redis.Client
	prefix string
}

// NewRedisIDCache returns a cache storing keys under prefix. An empty prefix
// uses "fhirsearch:snapshot".
func NewRedisIDCache(rc *redis.Client, prefix string) *RedisIDCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisIDCache{rc: rc, prefix: prefix}
}

// Key returns the redis key a token is stored under.
func (c *RedisIDCache) Key(token string) string {
	return fmt.Sprintf("%s:%s", c.prefix, token)
}

// GetSnapshot loads the snapshot for token. A missing or expired key is
// search.ErrSnapshotNotFound.
func (c *RedisIDCache) GetSnapshot(ctx context.Context, token string) (*search.Snapshot, error) {
	if c.rc == nil {
		return nil, errors.New("redis client is nil, cannot get snapshot")
	}
	raw, err := c.rc.Get(ctx, c.Key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, search.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap search.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// PutSnapshot stores snap under token for ttl. A zero ttl keeps the key
// until it is evicted.
func (c *RedisIDCache) PutSnapshot(ctx context.Context, token string, snap *search.Snapshot, ttl time.Duration) error {
	if c.rc == nil {
		return errors.New("redis client is nil, cannot put snapshot")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.rc.Set(ctx, c.Key(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}
