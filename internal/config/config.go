package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Upstream UpstreamConfig
	Fetch    FetchConfig
	Range    RangeConfig
	Cache    CacheConfig
	Records  RecordsConfig
	Settings SettingsConfig
	Proxy    ProxyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"econscour"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"` // guards load control and settings writes
}

// UpstreamConfig describes where the daily econ dumps live.
type UpstreamConfig struct {
	BaseURL   string        `envconfig:"UPSTREAM_BASE_URL" default:"https://pub.drednot.io/prod/econ"`
	Timeout   time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"UPSTREAM_USER_AGENT" default:"web-econscourer/1.0"`
	PadDates  bool          `envconfig:"UPSTREAM_PAD_DATES" default:"false"`
	MaxBody   int64         `envconfig:"UPSTREAM_MAX_BODY_BYTES" default:"536870912"`
	// Proxies is an ordered fallback chain: direct, path:<prefix>, url:<prefix> or mount:<prefix>.
	// A chain of only direct entries is retried FETCH_MAX_RETRIES times; any other
	// chain gets FETCH_RETRIES_PER_PROXY attempts per entry.
	Proxies []string `envconfig:"UPSTREAM_PROXIES" default:"direct"`
}

// FetchConfig holds retry and concurrency knobs for range loads.
type FetchConfig struct {
	MaxRetries      int           `envconfig:"FETCH_MAX_RETRIES" default:"3"`
	BaseDelay       time.Duration `envconfig:"FETCH_BASE_DELAY" default:"1s"`
	RetriesPerProxy int           `envconfig:"FETCH_RETRIES_PER_PROXY" default:"2"`
	Concurrency     int           `envconfig:"FETCH_CONCURRENCY" default:"7"`
	ChunkSize       int           `envconfig:"FETCH_CHUNK_SIZE" default:"1000"`
}

// RangeConfig bounds the date ranges a user may request.
type RangeConfig struct {
	MinDate     string `envconfig:"RANGE_MIN_DATE" default:"2022-11-23"`
	MaxSpanDays int    `envconfig:"RANGE_MAX_SPAN_DAYS" default:"60"` // 0 disables the cap
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type            string        `envconfig:"CACHE_TYPE" default:"memory"` // memory, redis, sqlite, mysql or postgres
	Size            int           `envconfig:"CACHE_SIZE" default:"5"`      // days kept by the memory cache
	MaxEntries      int           `envconfig:"CACHE_MAX_ENTRIES" default:"500"`
	MaxAge          time.Duration `envconfig:"CACHE_MAX_AGE" default:"720h"`
	JanitorInterval time.Duration `envconfig:"CACHE_JANITOR_INTERVAL" default:"10m"`
	TTL             time.Duration `envconfig:"CACHE_TTL" default:"0s"`
	SQLitePath      string        `envconfig:"CACHE_SQLITE_PATH" default:"./data/econ-cache.db"`
	RedisHost       string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort       int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix  string        `envconfig:"REDIS_KEY_PREFIX" default:"econscour:cache"`
	PostgresDSN     string        `envconfig:"POSTGRES_DSN" default:"postgres://postgres@localhost:5432/econscour?sslmode=disable"`
	MySQL           MySQLConfig
}

// MySQLConfig holds MySQL connection settings, shared by the cache and settings stores.
type MySQLConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"econscour"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// RecordsConfig selects how transaction records are merged.
type RecordsConfig struct {
	DedupPolicy string `envconfig:"DEDUP_POLICY" default:"exact"` // exact or aggregate
	ShipsOnly   bool   `envconfig:"SHIPS_ONLY" default:"false"`
}

// SettingsConfig selects where viewer settings are persisted.
type SettingsConfig struct {
	Type       string `envconfig:"SETTINGS_DB_TYPE" default:"sqlite"` // sqlite or mysql
	SQLitePath string `envconfig:"SETTINGS_SQLITE_PATH" default:"./data/settings.db"`
}

// ProxyConfig holds settings for the restricted upstream passthrough.
type ProxyConfig struct {
	AllowedPrefix  string   `envconfig:"PROXY_ALLOWED_PREFIX" default:"https://pub.drednot.io/prod/econ/"`
	AllowedOrigins []string `envconfig:"PROXY_ALLOWED_ORIGINS" default:"*"`
	MaxRedirects   int      `envconfig:"PROXY_MAX_REDIRECTS" default:"5"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate rejects combinations the loader cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Type) {
	case "memory", "redis", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	switch strings.ToLower(c.Settings.Type) {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown settings store %q", c.Settings.Type)
	}
	switch strings.ToLower(c.Records.DedupPolicy) {
	case "exact", "aggregate":
	default:
		return fmt.Errorf("unknown dedup policy %q", c.Records.DedupPolicy)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch concurrency must be positive, got %d", c.Fetch.Concurrency)
	}
	if c.Fetch.ChunkSize < 1 {
		return fmt.Errorf("fetch chunk size must be positive, got %d", c.Fetch.ChunkSize)
	}
	if c.Range.MaxSpanDays < 0 {
		return fmt.Errorf("range max span must not be negative, got %d", c.Range.MaxSpanDays)
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache size must be positive, got %d", c.Cache.Size)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
