package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// putIfRoomScript stores a payload and indexes it by timestamp, refusing new keys
// once the index holds ARGV[3] members. Returns 1 when stored.
var putIfRoomScript = redis.NewScript(`
	local max = tonumber(ARGV[3])
	if max > 0 and redis.call("EXISTS", KEYS[1]) == 0 and redis.call("ZCARD", KEYS[2]) >= max then
		return 0
	end
	local ttl = tonumber(ARGV[4])
	if ttl > 0 then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
	else
		redis.call("SET", KEYS[1], ARGV[1])
	end
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[5])
	return 1
`)

// RedisCache keeps payloads in Redis with a sorted-set index scored by write time.
type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	maxEntries int
	ttl        time.Duration

	evictions     atomic.Int64
	quotaFailures atomic.Int64
}

// RedisCacheConfig holds configuration for the Redis cache.
type RedisCacheConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	MaxEntries int // 0 leaves the bound to Redis maxmemory
	TTL        time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "econscour:cache"
	}

	log.Printf("[RedisCache] Connected - DB:%d, prefix:%s, max entries:%d", cfg.DB, keyPrefix, cfg.MaxEntries)
	return &RedisCache{
		client:     client,
		keyPrefix:  keyPrefix,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
	}, nil
}

func (c *RedisCache) entryKey(member string) string {
	return c.keyPrefix + ":entry:" + member
}

func (c *RedisCache) indexKey() string {
	return c.keyPrefix + ":index"
}

func (c *RedisCache) name() string { return "RedisCache" }

// Get retrieves a payload by key.
func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := c.client.Get(ctx, c.entryKey(key.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Put stores a payload, evicting the oldest fifth of entries once if Redis is full.
func (c *RedisCache) Put(ctx context.Context, key Key, payload []byte) error {
	err := putWithQuotaRetry(ctx, c, key, payload)
	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.quotaFailures.Add(1)
	}
	return err
}

func (c *RedisCache) put(ctx context.Context, key Key, payload []byte) error {
	member := key.String()
	stored, err := putIfRoomScript.Run(ctx, c.client,
		[]string{c.entryKey(member), c.indexKey()},
		payload, time.Now().UnixMicro(), c.maxEntries, c.ttl.Milliseconds(), member,
	).Int()
	if err != nil {
		if isRedisOOM(err) {
			return &QuotaExceededError{Backend: "redis", Key: key, Err: err}
		}
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	if stored == 0 {
		return &QuotaExceededError{Backend: "redis", Key: key}
	}
	return nil
}

func isRedisOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM")
}

func (c *RedisCache) count(ctx context.Context) (int, error) {
	n, err := c.client.ZCard(ctx, c.indexKey()).Result()
	return int(n), err
}

// evictOldest removes the n entries with the lowest write timestamps.
func (c *RedisCache) evictOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, int64(n-1)).Result()
	if err != nil {
		return 0, err
	}
	return c.remove(ctx, members)
}

func (c *RedisCache) remove(ctx context.Context, members []string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, len(members))
	zmembers := make([]interface{}, len(members))
	for i, m := range members {
		keys[i] = c.entryKey(m)
		zmembers[i] = m
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, c.indexKey(), zmembers...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis evict: %w", err)
	}

	c.evictions.Add(int64(len(members)))
	return len(members), nil
}

// EvictIfOverCapacity drops index members whose payload expired, then the oldest
// entries beyond MaxEntries.
func (c *RedisCache) EvictIfOverCapacity(ctx context.Context) (int, error) {
	removed, err := c.dropExpired(ctx)
	if err != nil {
		return removed, err
	}
	if c.maxEntries <= 0 {
		return removed, nil
	}

	total, err := c.count(ctx)
	if err != nil {
		return removed, err
	}
	if total <= c.maxEntries {
		return removed, nil
	}
	n, err := c.evictOldest(ctx, total-c.maxEntries)
	return removed + n, err
}

func (c *RedisCache) dropExpired(ctx context.Context) (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	pipe := c.client.Pipeline()
	exists := make([]*redis.IntCmd, len(members))
	for i, m := range members {
		exists[i] = pipe.Exists(ctx, c.entryKey(m))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
	}

	var gone []interface{}
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			gone = append(gone, members[i])
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	if err := c.client.ZRem(ctx, c.indexKey(), gone...).Err(); err != nil {
		return 0, err
	}
	return len(gone), nil
}

// PruneOlderThan removes entries written more than age ago.
func (c *RedisCache) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixMicro()
	members, err := c.client.ZRangeByScore(ctx, c.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	return c.remove(ctx, members)
}

// Len returns the number of indexed entries.
func (c *RedisCache) Len(ctx context.Context) (int, error) {
	return c.count(ctx)
}

// Clear removes every entry under the key prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	if _, err := c.remove(ctx, members); err != nil {
		return err
	}
	return c.client.Del(ctx, c.indexKey()).Err()
}

// Stats reports entry counts for the admin endpoint.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	n, err := c.count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend:       "redis",
		Entries:       n,
		Capacity:      c.maxEntries,
		Evictions:     c.evictions.Load(),
		QuotaFailures: c.quotaFailures.Load(),
	}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var (
	_ Cache         = (*RedisCache)(nil)
	_ Pruner        = (*RedisCache)(nil)
	_ StatsProvider = (*RedisCache)(nil)
)
