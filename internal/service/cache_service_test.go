package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

type cacheRepoStub struct {
	getErr  error
	indexes []string
	purged  []string
	ttl     time.Duration
}

func (r *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	return r.getErr
}

func (r *cacheRepoStub) Put(ctx context.Context, index, key string, value interface{}, ttl time.Duration) error {
	r.indexes = append(r.indexes, index)
	r.ttl = ttl
	return nil
}

func (r *cacheRepoStub) Purge(ctx context.Context, index string) (int, error) {
	r.purged = append(r.purged, index)
	return 2, nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := &cacheRepoStub{}
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)

	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.True(t, hit)

	repo.getErr = appErrors.ErrCacheMiss
	hit, err = svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)

	repo.getErr = errors.New("connection refused")
	_, err = svc.Get(context.Background(), "k", &struct{}{})
	require.Error(t, err)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

func TestCacheServiceDefaultsAndInvalidate(t *testing.T) {
	repo := &cacheRepoStub{}
	svc := NewCacheService(repo, nil, 0, nil, true)

	require.NoError(t, svc.Set(context.Background(), ResultCacheKey("abc"), "v", 0))
	assert.Equal(t, 10*time.Minute, repo.ttl)

	assert.Equal(t, []string{"timetable:results"}, repo.indexes)

	require.NoError(t, svc.InvalidateResults(context.Background()))
	assert.Equal(t, []string{"timetable:results"}, repo.purged)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &cacheRepoStub{}
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	require.NoError(t, nilSvc.InvalidateResults(context.Background()))
}
