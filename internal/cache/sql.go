package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour of a SQLCache.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// mysqlErrRecordFileFull is ER_RECORD_FILE_FULL ("The table is full").
const mysqlErrRecordFileFull = 1114

// SQLCache stores payloads in an econ_cache table, one row per (day, kind).
type SQLCache struct {
	db         *sql.DB
	dialect    Dialect
	maxEntries int

	mu     sync.Mutex // serializes writes and the monotonic timestamp
	lastTS int64

	evictions     atomic.Int64
	quotaFailures atomic.Int64
}

// NewSQLiteCache opens (or creates) a SQLite cache database at dbPath.
func NewSQLiteCache(dbPath string, maxEntries int) (*SQLCache, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c, err := newSQLCache(db, DialectSQLite, maxEntries)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[SQLCache] Initialized sqlite cache: %s", dbPath)
	return c, nil
}

// NewMySQLCache opens a MySQL cache with the given DSN.
func NewMySQLCache(dsn string, maxEntries int) (*SQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	c, err := newSQLCache(db, DialectMySQL, maxEntries)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[SQLCache] Initialized mysql cache")
	return c, nil
}

func newSQLCache(db *sql.DB, dialect Dialect, maxEntries int) (*SQLCache, error) {
	c := &SQLCache{db: db, dialect: dialect, maxEntries: maxEntries}
	if err := c.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return c, nil
}

// q adapts a query written with ? placeholders to the dialect.
func (c *SQLCache) q(query string) string { return rebind(c.dialect, query) }

// createTables creates the cache table.
func (c *SQLCache) createTables() error {
	if c.dialect == DialectPostgres {
		_, err := c.db.Exec(postgresSchema)
		return err
	}
	if c.dialect == DialectMySQL {
		_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS econ_cache (
			date_key VARCHAR(16) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			payload LONGBLOB NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (date_key, kind),
			INDEX idx_econ_cache_created (created_at)
		)`)
		return err
	}

	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS econ_cache (
		date_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (date_key, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_econ_cache_created ON econ_cache(created_at);
	`)
	return err
}

func (c *SQLCache) name() string { return "SQLCache" }

func dateColumn(key Key) string {
	if key.Date.IsZero() {
		return "static"
	}
	return key.Date.String()
}

// Get retrieves a payload by key.
func (c *SQLCache) Get(ctx context.Context, key Key) ([]byte, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		c.q(`SELECT payload FROM econ_cache WHERE date_key = ? AND kind = ?`),
		dateColumn(key), string(key.Kind),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return payload, nil
}

// Put stores a payload, evicting the oldest fifth of rows once if the store is full.
func (c *SQLCache) Put(ctx context.Context, key Key, payload []byte) error {
	err := putWithQuotaRetry(ctx, c, key, payload)
	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.quotaFailures.Add(1)
	}
	return err
}

// nextTimestamp returns a strictly increasing microsecond timestamp so that
// eviction order matches write order.
func (c *SQLCache) nextTimestamp() int64 {
	ts := time.Now().UnixMicro()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

func (c *SQLCache) put(ctx context.Context, key Key, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 {
		var exists, total int
		err := c.db.QueryRowContext(ctx,
			c.q(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN date_key = ? AND kind = ? THEN 1 ELSE 0 END), 0) FROM econ_cache`),
			dateColumn(key), string(key.Kind),
		).Scan(&total, &exists)
		if err != nil {
			return fmt.Errorf("failed to count cache entries: %w", err)
		}
		if exists == 0 && total >= c.maxEntries {
			return &QuotaExceededError{Backend: string(c.dialect), Key: key}
		}
	}

	query := `
		INSERT INTO econ_cache (date_key, kind, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date_key, kind) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at`
	if c.dialect == DialectMySQL {
		query = `
		INSERT INTO econ_cache (date_key, kind, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			payload = VALUES(payload),
			created_at = VALUES(created_at)`
	}

	_, err := c.db.ExecContext(ctx, c.q(query), dateColumn(key), string(key.Kind), payload, c.nextTimestamp())
	if err != nil {
		if c.isQuotaError(err) {
			return &QuotaExceededError{Backend: string(c.dialect), Key: key, Err: err}
		}
		return fmt.Errorf("failed to put cache entry %s: %w", key, err)
	}
	return nil
}

func (c *SQLCache) isQuotaError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrRecordFileFull
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_FULL
	}
	return isPostgresFull(err)
}

func (c *SQLCache) count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM econ_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

type rowKey struct {
	date string
	kind string
}

// evictOldest removes the n rows with the lowest created_at.
func (c *SQLCache) evictOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		c.q(`SELECT date_key, kind FROM econ_cache ORDER BY created_at ASC LIMIT ?`), n)
	if err != nil {
		return 0, fmt.Errorf("failed to select oldest entries: %w", err)
	}
	var victims []rowKey
	for rows.Next() {
		var k rowKey
		if err := rows.Scan(&k.date, &k.kind); err != nil {
			rows.Close()
			return 0, err
		}
		victims = append(victims, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return c.deleteRows(ctx, victims)
}

func (c *SQLCache) deleteRows(ctx context.Context, victims []rowKey) (int, error) {
	if len(victims) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, c.q(`DELETE FROM econ_cache WHERE date_key = ? AND kind = ?`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, v := range victims {
		if _, err := stmt.ExecContext(ctx, v.date, v.kind); err != nil {
			return 0, fmt.Errorf("failed to delete %s/%s: %w", v.date, v.kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.evictions.Add(int64(len(victims)))
	return len(victims), nil
}

// EvictIfOverCapacity drops the oldest rows beyond MaxEntries.
func (c *SQLCache) EvictIfOverCapacity(ctx context.Context) (int, error) {
	if c.maxEntries <= 0 {
		return 0, nil
	}
	total, err := c.count(ctx)
	if err != nil {
		return 0, err
	}
	if total <= c.maxEntries {
		return 0, nil
	}
	return c.evictOldest(ctx, total-c.maxEntries)
}

// PruneOlderThan deletes rows written more than age ago.
func (c *SQLCache) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-age).UnixMicro()
	result, err := c.db.ExecContext(ctx, c.q(`DELETE FROM econ_cache WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.evictions.Add(deleted)
		log.Printf("[SQLCache] Pruned %d entries older than %v", deleted, age)
	}
	return int(deleted), nil
}

// Len returns the number of rows.
func (c *SQLCache) Len(ctx context.Context) (int, error) {
	return c.count(ctx)
}

// Keys returns every stored key, oldest first.
func (c *SQLCache) Keys(ctx context.Context) ([]Key, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT date_key, kind FROM econ_cache ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var date, kind string
		if err := rows.Scan(&date, &kind); err != nil {
			return nil, err
		}
		k, err := ParseKey(strings.Join([]string{date, kind}, "/"))
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clear removes all rows.
func (c *SQLCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx, `DELETE FROM econ_cache`)
	return err
}

// Stats reports row counts for the admin endpoint.
func (c *SQLCache) Stats(ctx context.Context) (Stats, error) {
	n, err := c.count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend:       string(c.dialect),
		Entries:       n,
		Capacity:      c.maxEntries,
		Evictions:     c.evictions.Load(),
		QuotaFailures: c.quotaFailures.Load(),
	}, nil
}

// Close closes the database connection.
func (c *SQLCache) Close() error {
	return c.db.Close()
}

var (
	_ Cache         = (*SQLCache)(nil)
	_ Pruner        = (*SQLCache)(nil)
	_ StatsProvider = (*SQLCache)(nil)
)
