package cache

import (
	"context"
	"fmt"
	"time"

	"econscour/internal/model"
)

// Key identifies one cached upstream resource. Static resources use the zero date.
type Key struct {
	Date model.DateKey
	Kind model.ResourceKind
}

// String returns the storage form of the key, e.g. "2022-11-23/log".
func (k Key) String() string {
	if k.Date.IsZero() {
		return "static/" + string(k.Kind)
	}
	return k.Date.String() + "/" + string(k.Kind)
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	prefix, kind, ok := splitKey(s)
	if !ok {
		return Key{}, fmt.Errorf("invalid cache key %q", s)
	}
	k := Key{Kind: model.ResourceKind(kind)}
	if prefix == "static" {
		return k, nil
	}
	d, err := model.ParseDateKey(prefix)
	if err != nil {
		return Key{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	k.Date = d
	return k, nil
}

func splitKey(s string) (string, string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[:i], s[i+1:], i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}

// Cache stores decompressed upstream payloads keyed by day and resource kind.
// Backends are the bounded in-memory map, Redis and a SQL table.
type Cache interface {
	// Get retrieves a payload. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Put stores a payload, replacing any entry under the same key.
	// Persistent backends return *QuotaExceededError when the entry could not
	// be stored even after evicting.
	Put(ctx context.Context, key Key, payload []byte) error

	// EvictIfOverCapacity drops the oldest entries beyond the backend's bound
	// and returns how many were removed.
	EvictIfOverCapacity(ctx context.Context) (int, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Pruner is implemented by backends that can drop entries by age.
type Pruner interface {
	PruneOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Stats describes a backend for the admin endpoint.
type Stats struct {
	Backend       string `json:"backend"`
	Entries       int    `json:"entries"`
	Capacity      int    `json:"capacity"`
	Evictions     int64  `json:"evictions"`
	QuotaFailures int64  `json:"quota_failures"`
}

// StatsProvider is implemented by every backend in this package.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)

// QuotaExceededError reports a write a persistent backend refused for lack of room.
type QuotaExceededError struct {
	Backend string
	Key     Key
	Err     error
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s cache quota exceeded for %s: %v", e.Backend, e.Key, e.Err)
	}
	return fmt.Sprintf("%s cache quota exceeded for %s", e.Backend, e.Key)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }
