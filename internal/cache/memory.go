package cache

import (
	"context"
	"sync"
	"time"

	"econscour/internal/model"
)

// DefaultMemoryDays is how many days the in-memory cache keeps.
const DefaultMemoryDays = 5

// cacheEntry represents a cached value with expiration.
type cacheEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

// isExpired checks if the entry has expired. A zero expiry never expires.
func (e *cacheEntry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is a FIFO cache bounded by a number of days. Every resource of a
// day shares that day's slot; static resources are kept outside the bound.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[Key]*cacheEntry
	days    []model.DateKey // insertion order
	maxDays int
	ttl     time.Duration

	evictions int64
}

// NewMemoryCache creates an in-memory cache holding at most maxDays days.
// ttl of 0 keeps entries until evicted.
func NewMemoryCache(maxDays int, ttl time.Duration) *MemoryCache {
	if maxDays < 1 {
		maxDays = DefaultMemoryDays
	}
	return &MemoryCache{
		entries: make(map[Key]*cacheEntry),
		maxDays: maxDays,
		ttl:     ttl,
	}
}

// Get retrieves a payload by key.
func (c *MemoryCache) Get(ctx context.Context, key Key) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(time.Now()) {
		return nil, ErrCacheMiss
	}

	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, nil
}

// Put stores a payload and evicts the oldest day when a new day overflows the bound.
func (c *MemoryCache) Put(ctx context.Context, key Key, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueCopy := make([]byte, len(payload))
	copy(valueCopy, payload)

	now := time.Now()
	entry := &cacheEntry{value: valueCopy, createdAt: now}
	if c.ttl > 0 {
		entry.expiresAt = now.Add(c.ttl)
	}

	if !key.Date.IsZero() && !c.hasDay(key.Date) {
		c.days = append(c.days, key.Date)
	}
	c.entries[key] = entry
	c.evictLocked(now)
	return nil
}

func (c *MemoryCache) hasDay(d model.DateKey) bool {
	for _, day := range c.days {
		if day == d {
			return true
		}
	}
	return false
}

// EvictIfOverCapacity drops expired entries and the oldest days beyond the bound.
func (c *MemoryCache) EvictIfOverCapacity(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(time.Now()), nil
}

func (c *MemoryCache) evictLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	for len(c.days) > c.maxDays {
		oldest := c.days[0]
		c.days = c.days[1:]
		for _, kind := range model.DailyResources {
			k := Key{Date: oldest, Kind: kind}
			if _, ok := c.entries[k]; ok {
				delete(c.entries, k)
				removed++
			}
		}
	}

	c.evictions += int64(removed)
	return removed
}

// Len returns the number of live entries.
func (c *MemoryCache) Len(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Keys returns the daily keys in eviction order, oldest first.
func (c *MemoryCache) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []Key
	for _, d := range c.days {
		for _, kind := range model.DailyResources {
			k := Key{Date: d, Kind: kind}
			if _, ok := c.entries[k]; ok {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*cacheEntry)
	c.days = nil
	return nil
}

// Stats reports entry counts for the admin endpoint.
func (c *MemoryCache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Backend:   "memory",
		Entries:   len(c.entries),
		Capacity:  c.maxDays,
		Evictions: c.evictions,
	}, nil
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}

var (
	_ Cache         = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
