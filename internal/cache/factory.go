package cache

import (
	"fmt"
	"strings"

	"econscour/internal/config"
)

// FromConfig builds the backend named by cfg.Type.
func FromConfig(cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryCache(cfg.Size, cfg.TTL), nil
	case "redis":
		c, err := NewRedisCache(RedisCacheConfig{
			Addr:       cfg.RedisAddress(),
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			KeyPrefix:  cfg.RedisKeyPrefix,
			MaxEntries: cfg.MaxEntries,
			TTL:        cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "sqlite":
		c, err := NewSQLiteCache(cfg.SQLitePath, cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "mysql":
		c, err := NewMySQLCache(cfg.MySQL.DSN(), cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "postgres":
		c, err := NewPostgresCache(cfg.PostgresDSN, cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
