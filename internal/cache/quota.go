package cache

import (
	"context"
	"errors"
	"log"
)

// EvictFraction is the share of entries dropped when a persistent backend runs out of room.
const EvictFraction = 0.2

// quotaStore is the write path shared by the persistent backends.
type quotaStore interface {
	name() string
	put(ctx context.Context, key Key, payload []byte) error
	evictOldest(ctx context.Context, n int) (int, error)
	count(ctx context.Context) (int, error)
}

// evictCount returns ceil(total * EvictFraction), at least 1.
func evictCount(total int) int {
	n := (total*int(EvictFraction*100) + 99) / 100
	if n < 1 {
		n = 1
	}
	return n
}

// putWithQuotaRetry writes key, and on a quota failure evicts the oldest 20% of
// entries by timestamp and retries once. A second quota failure is returned as
// *QuotaExceededError for the caller to log and carry on uncached.
func putWithQuotaRetry(ctx context.Context, s quotaStore, key Key, payload []byte) error {
	err := s.put(ctx, key, payload)
	var quotaErr *QuotaExceededError
	if err == nil || !errors.As(err, &quotaErr) {
		return err
	}

	total, cerr := s.count(ctx)
	if cerr != nil {
		return cerr
	}
	n := evictCount(total)
	removed, eerr := s.evictOldest(ctx, n)
	if eerr != nil {
		return eerr
	}
	log.Printf("[%s] Quota exceeded writing %s, evicted %d oldest entries", s.name(), key, removed)

	return s.put(ctx, key, payload)
}
