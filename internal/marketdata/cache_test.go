package marketdata

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risklens/internal/database"
)

func memoryCacheDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:cache_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "cache-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCachePutGet(t *testing.T) {
	cache, err := NewCache(4, nil, zerolog.Nop())
	require.NoError(t, err)

	md := buildMarketData(t, []string{"AAA", "BBB"}, 60)
	cache.Put("AAA,BBB:5", md)

	got := cache.Get("AAA,BBB:5")
	require.NotNil(t, got)
	assert.Equal(t, md.Symbols, got.Symbols)

	assert.Nil(t, cache.Get("missing"))

	size, hits, misses := cache.Stats()
	assert.Equal(t, 1, size)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	cache, err := NewCache(4, nil, zerolog.Nop())
	require.NoError(t, err)

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Put("k", buildMarketData(t, []string{"AAA", "BBB"}, 60))
	require.NotNil(t, cache.Get("k"))

	current = current.Add(DefaultCacheTTL + time.Minute)
	assert.Nil(t, cache.Get("k"))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewCache(2, nil, zerolog.Nop())
	require.NoError(t, err)

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	md := buildMarketData(t, []string{"AAA", "BBB"}, 60)

	cache.Put("first", md)
	current = current.Add(time.Second)
	cache.Put("second", md)
	current = current.Add(time.Second)

	// Touch "first" so "second" becomes the eviction candidate.
	require.NotNil(t, cache.Get("first"))
	current = current.Add(time.Second)

	cache.Put("third", md)

	assert.NotNil(t, cache.Get("first"))
	assert.Nil(t, cache.Get("second"))
	assert.NotNil(t, cache.Get("third"))
}

func TestCachePersistsAcrossInstances(t *testing.T) {
	db := memoryCacheDB(t)

	first, err := NewCache(4, db.Conn(), zerolog.Nop())
	require.NoError(t, err)

	md := buildMarketData(t, []string{"AAA", "BBB"}, 60)
	first.Put("AAA,BBB:5", md)

	// A fresh instance sharing the database must recover the entry.
	second, err := NewCache(4, db.Conn(), zerolog.Nop())
	require.NoError(t, err)

	got := second.Get("AAA,BBB:5")
	require.NotNil(t, got)
	assert.Equal(t, md.Symbols, got.Symbols)
	assert.Equal(t, md.TradingDays, got.TradingDays)
	assert.InDelta(t, md.Returns["AAA"][0], got.Returns["AAA"][0], 1e-12)
}
