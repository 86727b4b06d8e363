package service

import (
	"context"
	"log"
	"sync"
	"time"

	"econscour/internal/cache"
)

// JanitorConfig holds configuration for the cache janitor.
type JanitorConfig struct {
	// Interval is how often the janitor runs.
	// Default: 10 minutes
	Interval time.Duration

	// MaxAge drops entries older than this from backends that track insertion
	// time. Zero keeps entries until capacity forces them out.
	MaxAge time.Duration

	// Timeout bounds a single run.
	Timeout time.Duration
}

// DefaultJanitorConfig returns the default janitor configuration.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Interval: 10 * time.Minute,
		MaxAge:   30 * 24 * time.Hour,
		Timeout:  time.Minute,
	}
}

// RunStats reports what one janitor run removed.
type RunStats struct {
	Evicted int `json:"evicted"`
	Pruned  int `json:"pruned"`
}

// CacheJanitor periodically enforces the capacity and age bounds of a cache.
type CacheJanitor struct {
	cache     cache.Cache
	config    JanitorConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewCacheJanitor creates a janitor for c.
func NewCacheJanitor(c cache.Cache, config JanitorConfig) *CacheJanitor {
	def := DefaultJanitorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	return &CacheJanitor{
		cache:  c,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic runs. Calling Start twice is a no-op.
func (j *CacheJanitor) Start() {
	j.mu.Lock()
	if j.isRunning {
		j.mu.Unlock()
		return
	}
	j.isRunning = true
	j.ticker = time.NewTicker(j.config.Interval)
	j.mu.Unlock()

	log.Printf("[CacheJanitor] Started - Interval: %v, MaxAge: %v", j.config.Interval, j.config.MaxAge)

	go j.run()
}

func (j *CacheJanitor) run() {
	for {
		select {
		case <-j.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), j.config.Timeout)
			if _, err := j.RunNow(ctx); err != nil {
				log.Printf("[CacheJanitor] Error during run: %v", err)
			}
			cancel()
		case <-j.stopCh:
			log.Printf("[CacheJanitor] Stopped")
			return
		}
	}
}

// RunNow evicts entries over capacity and, when the backend supports it,
// entries older than MaxAge.
func (j *CacheJanitor) RunNow(ctx context.Context) (RunStats, error) {
	var stats RunStats

	evicted, err := j.cache.EvictIfOverCapacity(ctx)
	stats.Evicted = evicted
	if err != nil {
		return stats, err
	}

	if p, ok := j.cache.(cache.Pruner); ok && j.config.MaxAge > 0 {
		pruned, err := p.PruneOlderThan(ctx, j.config.MaxAge)
		stats.Pruned = pruned
		if err != nil {
			return stats, err
		}
	}

	if stats.Evicted > 0 || stats.Pruned > 0 {
		log.Printf("[CacheJanitor] Evicted %d entries over capacity, pruned %d stale entries", stats.Evicted, stats.Pruned)
	}
	return stats, nil
}

// Stop stops the janitor. It is safe to call more than once.
func (j *CacheJanitor) Stop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		defer j.mu.Unlock()

		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.stopCh)
		j.isRunning = false
	})
}
