package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

// CacheRepository keeps JSON encoded generation results in Redis. Every entry is
// also listed in an index set so a whole family can be purged without SCAN.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository. A nil client turns every call into a miss.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get decodes the entry at key into dest, returning ErrCacheMiss when it is absent or corrupt.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, key).Err()
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Put stores value at key for ttl and records key in index, in one transaction.
func (r *CacheRepository) Put(ctx context.Context, index, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, ttl)
		pipe.SAdd(ctx, index, key)
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Purge deletes every entry listed in index and the index itself. It returns how many
// live entries were removed.
func (r *CacheRepository) Purge(ctx context.Context, index string) (int, error) {
	if r.client == nil {
		return 0, nil
	}
	keys, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("redis members %s: %w", index, err)
	}
	var removed int64
	if len(keys) > 0 {
		removed, err = r.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("redis delete %d entries of %s: %w", len(keys), index, err)
		}
	}
	if err := r.client.Del(ctx, index).Err(); err != nil {
		return int(removed), fmt.Errorf("redis delete %s: %w", index, err)
	}
	return int(removed), nil
}

// Ping reports whether Redis is reachable. It succeeds when caching is disabled.
func (r *CacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
