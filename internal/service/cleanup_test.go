package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econscour/internal/cache"
	"econscour/internal/model"
)

func key(day int, kind model.ResourceKind) cache.Key {
	return cache.Key{Date: model.DateKey{Year: 2023, Month: time.March, Day: day}, Kind: kind}
}

func TestCacheJanitor_EvictsExpiredMemoryEntries(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(5, 5*time.Millisecond)
	require.NoError(t, c.Put(ctx, key(1, model.ResourceSummary), []byte("a")))
	require.NoError(t, c.Put(ctx, key(1, model.ResourceLog), []byte("b")))

	time.Sleep(20 * time.Millisecond)

	j := NewCacheJanitor(c, JanitorConfig{MaxAge: time.Hour})
	stats, err := j.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evicted)
	assert.Zero(t, stats.Pruned, "memory cache has no age index")

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCacheJanitor_PrunesStaleSQLRows(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), 100)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(ctx, key(1, model.ResourceSummary), []byte("old")))
	time.Sleep(20 * time.Millisecond)

	j := NewCacheJanitor(c, JanitorConfig{MaxAge: 10 * time.Millisecond})
	stats, err := j.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pruned)

	require.NoError(t, c.Put(ctx, key(2, model.ResourceSummary), []byte("fresh")))
	j = NewCacheJanitor(c, JanitorConfig{MaxAge: time.Hour})
	stats, err = j.RunNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pruned)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheJanitor_StartStop(t *testing.T) {
	c := cache.NewMemoryCache(5, time.Millisecond)
	require.NoError(t, c.Put(context.Background(), key(1, model.ResourceShips), []byte("x")))

	j := NewCacheJanitor(c, JanitorConfig{Interval: 5 * time.Millisecond})
	j.Start()
	j.Start()

	assert.Eventually(t, func() bool {
		n, _ := c.Len(context.Background())
		return n == 0
	}, time.Second, 5*time.Millisecond)

	j.Stop()
	j.Stop()
}
