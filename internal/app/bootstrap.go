// Package app wires configuration into the pipeline, cache and session objects
// shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"econscour/internal/cache"
	"econscour/internal/config"
	"econscour/internal/daterange"
	"econscour/internal/pipeline"
	"econscour/internal/records"
	"econscour/internal/repository"
	"econscour/internal/retry"
	"econscour/internal/session"
	"econscour/internal/upstream"

	_ "github.com/go-sql-driver/mysql"
)

// App holds all app dependencies.
type App struct {
	Config   *config.Config
	Client   *upstream.Client
	Retry    *retry.Controller
	Cache    cache.Cache
	Loader   *pipeline.Loader
	Session  *session.Controller
	Settings repository.SettingsRepository

	mysqlDB *sql.DB
}

// Options tweak bootstrapping for callers that do not need every component.
type Options struct {
	// SkipSettings leaves the session without a settings store.
	SkipSettings bool
}

// New initializes the app with all dependencies. A cache backend that cannot
// be reached is replaced by the in-memory cache; a settings store that cannot
// be opened leaves settings unpersisted.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	a.Client = upstream.NewClientFromConfig(cfg.Upstream)

	proxies, err := upstream.ParseProxies(cfg.Upstream.Proxies, a.Client.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("upstream proxies: %w", err)
	}
	a.Retry = retry.New(retry.Config{
		MaxRetries:      cfg.Fetch.MaxRetries,
		BaseDelay:       cfg.Fetch.BaseDelay,
		RetriesPerProxy: cfg.Fetch.RetriesPerProxy,
		Proxies:         proxies,
	})
	log.Printf("[App] Upstream %s via %d proxy transform(s)", a.Client.BaseURL(), len(proxies))

	expander, err := daterange.New(cfg.Range.MinDate, cfg.Range.MaxSpanDays)
	if err != nil {
		return nil, err
	}

	policy, err := records.ParsePolicy(cfg.Records.DedupPolicy)
	if err != nil {
		return nil, err
	}

	a.Cache, err = cache.FromConfig(cfg.Cache)
	if err != nil {
		log.Printf("[App] Warning: %s cache unavailable: %v. Falling back to memory.", cfg.Cache.Type, err)
		a.Cache = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}
	log.Printf("[App] Cache backend: %T", a.Cache)

	a.Loader = pipeline.NewLoader(a.Client, a.Retry, cache.NewFetcher(a.Cache), expander, pipeline.Config{
		Concurrency: cfg.Fetch.Concurrency,
		ChunkSize:   cfg.Fetch.ChunkSize,
		Policy:      policy,
		ShipsOnly:   cfg.Records.ShipsOnly,
	})

	if !opts.SkipSettings {
		a.Settings, err = a.openSettings(ctx)
		if err != nil {
			log.Printf("[App] Warning: settings store unavailable: %v", err)
		}
	}

	a.Session = session.New(a.Loader, a.Settings)
	return a, nil
}

func (a *App) openSettings(ctx context.Context) (repository.SettingsRepository, error) {
	switch strings.ToLower(a.Config.Settings.Type) {
	case "mysql":
		db, err := sql.Open("mysql", a.Config.Cache.MySQL.DSN())
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("mysql ping failed: %w", err)
		}

		repo, err := repository.NewMySQLSettingsRepository(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.mysqlDB = db
		log.Println("[App] MySQL settings repository initialized")
		return repo, nil
	default:
		repo, err := repository.NewSQLiteSettingsRepository(a.Config.Settings.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

// CacheReady probes the cache backend.
func (a *App) CacheReady(ctx context.Context) error {
	_, err := a.Cache.Len(ctx)
	return err
}

// Close aborts a running load and releases every backend.
func (a *App) Close() error {
	var errs []error

	if a.Session != nil {
		if err := a.Session.Abort(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = a.Session.Wait(ctx)
			cancel()
		}
	}
	if a.Settings != nil {
		errs = append(errs, a.Settings.Close())
	}
	if a.mysqlDB != nil {
		errs = append(errs, a.mysqlDB.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	return errors.Join(errs...)
}
