package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/pick-research/pkg/logger"
)

// newTestCache connects to TEST_REDIS_URL; the tests skip without it.
func newTestCache(t *testing.T) *CacheService {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	cache, err := NewCacheService(url, logger.Discard())
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheService_SetGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	key := "pick-research:test:" + uuid.NewString()

	var miss string
	assert.ErrorIs(t, cache.Get(ctx, key, &miss), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, key, []string{"a", "b"}, time.Minute))
	var got []string
	require.NoError(t, cache.Get(ctx, key, &got))
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, cache.Delete(ctx, key))
}

func TestCacheService_RunLock(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	date := "2099-01-" + uuid.NewString()[:2]

	ok, err := cache.AcquireRunLock(ctx, "props", date, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.AcquireRunLock(ctx, "props", date, "run-2")
	require.NoError(t, err)
	assert.False(t, ok, "second scheduler must not take the lock")

	// a non-owner release leaves the lock in place
	require.NoError(t, cache.ReleaseRunLock(ctx, "props", date, "run-2"))
	ok, err = cache.AcquireRunLock(ctx, "props", date, "run-3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.ReleaseRunLock(ctx, "props", date, "run-1"))
	ok, err = cache.AcquireRunLock(ctx, "props", date, "run-3")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, cache.ReleaseRunLock(ctx, "props", date, "run-3"))
}
