package cache

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
)

// FetchFunc loads a payload on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Fetcher is a read-through wrapper around a Cache. Cache failures never fail a
// fetch; they are logged and the payload is returned uncached.
type Fetcher struct {
	cache Cache

	hits     atomic.Int64
	misses   atomic.Int64
	uncached atomic.Int64
}

// NewFetcher wraps c. A nil cache disables caching.
func NewFetcher(c Cache) *Fetcher {
	return &Fetcher{cache: c}
}

// Cache returns the wrapped backend.
func (f *Fetcher) Cache() Cache {
	return f.cache
}

// Get returns the cached payload for key or calls fetch and stores the result.
// Empty payloads, such as days the upstream has no file for, are not stored.
func (f *Fetcher) Get(ctx context.Context, key Key, fetch FetchFunc) ([]byte, error) {
	if f.cache != nil {
		data, err := f.cache.Get(ctx, key)
		if err == nil {
			f.hits.Add(1)
			return data, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("[Cache] Warning: read %s failed: %v", key, err)
		}
	}
	f.misses.Add(1)

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if f.cache == nil || len(data) == 0 {
		return data, nil
	}

	if err := f.cache.Put(ctx, key, data); err != nil {
		f.uncached.Add(1)
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			log.Printf("[Cache] Warning: %v; continuing without caching", err)
		} else {
			log.Printf("[Cache] Warning: write %s failed: %v", key, err)
		}
	}
	return data, nil
}

// FetcherStats counts read-through outcomes.
type FetcherStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Uncached int64 `json:"uncached"`
}

// Stats returns the read-through counters.
func (f *Fetcher) Stats() FetcherStats {
	return FetcherStats{
		Hits:     f.hits.Load(),
		Misses:   f.misses.Load(),
		Uncached: f.uncached.Load(),
	}
}
