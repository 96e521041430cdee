package marketdata

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultCacheTTL bounds how long a cached return matrix is served before the
// provider rebuilds it from stored history.
const DefaultCacheTTL = 24 * time.Hour

type cacheEntry struct {
	data     *MarketData
	storedAt time.Time
	lastUsed time.Time
}

// Cache is an explicit, capacity-bounded cache of built return matrices keyed
// by (asset universe, lookback years). Entries are additionally persisted to
// the cache database as msgpack blobs so they survive restarts.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	capacity int
	ttl      time.Duration
	db       *sql.DB // optional persistence; nil disables it
	hits     int64
	misses   int64
	log      zerolog.Logger
	now      func() time.Time
}

// NewCache creates the cache. db may be nil for a purely in-memory cache.
func NewCache(capacity int, db *sql.DB, log zerolog.Logger) (*Cache, error) {
	if capacity <= 0 {
		capacity = 32
	}

	c := &Cache{
		entries:  make(map[string]*cacheEntry, capacity),
		capacity: capacity,
		ttl:      DefaultCacheTTL,
		db:       db,
		log:      log.With().Str("component", "marketdata_cache").Logger(),
		now:      time.Now,
	}

	if db != nil {
		if err := c.ensureSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}

	return c, nil
}

// CacheKey derives the cache key for a sorted universe and lookback window.
func CacheKey(symbols []string, lookbackYears int) string {
	return strings.Join(symbols, ",") + ":" + strconv.Itoa(lookbackYears)
}

func (c *Cache) ensureSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS return_matrix_cache (
			key        TEXT PRIMARY KEY,
			stored_at  TEXT NOT NULL,
			payload    BLOB NOT NULL
		)
	`)
	return err
}

// Get returns a fresh cached MarketData for the key, or nil on miss.
func (c *Cache) Get(key string) *MarketData {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.storedAt) < c.ttl {
		entry.lastUsed = c.now()
		c.hits++
		c.mu.Unlock()
		return entry.data
	}
	if ok {
		delete(c.entries, key) // expired
	}
	c.mu.Unlock()

	// Fall back to the persisted copy.
	if md, storedAt := c.loadPersisted(key); md != nil {
		c.mu.Lock()
		c.hits++
		c.storeLocked(key, md, storedAt)
		c.mu.Unlock()
		return md
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil
}

// Put stores a built MarketData under the key, evicting the least recently
// used entry when over capacity.
func (c *Cache) Put(key string, md *MarketData) {
	now := c.now()

	c.mu.Lock()
	c.storeLocked(key, md, now)
	c.mu.Unlock()

	c.persist(key, md, now)
}

func (c *Cache) storeLocked(key string, md *MarketData, storedAt time.Time) {
	c.entries[key] = &cacheEntry{data: md, storedAt: storedAt, lastUsed: c.now()}

	for len(c.entries) > c.capacity {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.lastUsed.Before(oldest) {
				oldestKey = k
				oldest = e.lastUsed
			}
		}
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) persist(key string, md *MarketData, storedAt time.Time) {
	if c.db == nil {
		return
	}

	payload, err := msgpack.Marshal(md)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}

	_, err = c.db.Exec(`
		INSERT INTO return_matrix_cache (key, stored_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET stored_at = excluded.stored_at, payload = excluded.payload
	`, key, storedAt.UTC().Format(time.RFC3339), payload)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to persist cache entry")
	}
}

func (c *Cache) loadPersisted(key string) (*MarketData, time.Time) {
	if c.db == nil {
		return nil, time.Time{}
	}

	var storedAtStr string
	var payload []byte
	err := c.db.QueryRow(
		`SELECT stored_at, payload FROM return_matrix_cache WHERE key = ?`, key,
	).Scan(&storedAtStr, &payload)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn().Err(err).Str("key", key).Msg("Failed to read persisted cache entry")
		}
		return nil, time.Time{}
	}

	storedAt, err := time.Parse(time.RFC3339, storedAtStr)
	if err != nil || c.now().Sub(storedAt) >= c.ttl {
		return nil, time.Time{}
	}

	var md MarketData
	if err := msgpack.Unmarshal(payload, &md); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode persisted cache entry")
		return nil, time.Time{}
	}

	return &md, storedAt
}

// Stats reports cache occupancy and hit counters for the health endpoint.
func (c *Cache) Stats() (size int, hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), c.hits, c.misses
}
