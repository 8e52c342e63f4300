package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Anuj-afk/TimeTable-Generator/pkg/cache"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

const defaultResultTTL = 10 * time.Minute

// CacheRepository stores indexed JSON entries.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Put(ctx context.Context, index, key string, value interface{}, ttl time.Duration) error
	Purge(ctx context.Context, index string) (int, error)
}

// ResultCacheKey is the key of a cached generation response for a demand fingerprint.
func ResultCacheKey(fingerprint string) string {
	return cache.Key("result", fingerprint)
}

// resultIndexKey lists every live ResultCacheKey.
var resultIndexKey = cache.Key("results")

// CacheService caches generation responses by fingerprint and records hit metrics.
// A nil or disabled service behaves as an always-missing cache.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service. A non-positive ttl defaults to ten minutes.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get decodes the cached response at key into dest and reports whether it was found.
// Read failures are logged and returned; the caller treats them as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("result cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores a response under key. A non-positive ttl uses the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	err := s.repo.Put(ctx, resultIndexKey, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	return err
}

// InvalidateResults drops every cached generation response.
func (s *CacheService) InvalidateResults(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	removed, err := s.repo.Purge(ctx, resultIndexKey)
	if err != nil {
		s.logger.Warn("result cache purge failed", zap.Error(err))
		return err
	}
	s.logger.Info("result cache purged", zap.Int("entries", removed))
	return nil
}
