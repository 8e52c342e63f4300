package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Anuj-afk/TimeTable-Generator/pkg/config"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "timetable:"

// Key joins parts under KeyPrefix, e.g. Key("result", fp) is "timetable:result:<fp>".
func Key(parts ...string) string {
	key := KeyPrefix[:len(KeyPrefix)-1]
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// NewRedis returns a configured Redis client. It returns nil without error when Redis is disabled.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return client, nil
}
