// Package pipeline loads a date range from the upstream: it fans out per-day
// fetches under a concurrency bound, isolates failures per day and merges the
// results in date order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"econscour/internal/aggregate"
	"econscour/internal/cache"
	"econscour/internal/chunk"
	"econscour/internal/daterange"
	"econscour/internal/model"
	"econscour/internal/records"
	"econscour/internal/retry"
	"econscour/internal/upstream"
)

// DefaultConcurrency is the number of days fetched at once.
const DefaultConcurrency = 7

// Config holds loader settings.
type Config struct {
	Concurrency int
	ChunkSize   int
	Policy      records.Policy
	ShipsOnly   bool
}

// Progress is reported after every finished day.
type Progress struct {
	Done  int           `json:"done"`
	Total int           `json:"total"`
	Date  model.DateKey `json:"date"`
}

// ProgressFunc receives progress updates. It is called from worker goroutines.
type ProgressFunc func(Progress)

// Options tweak a single load.
type Options struct {
	Policy    records.Policy // overrides Config.Policy when set
	ShipsOnly *bool          // overrides Config.ShipsOnly when set
	Progress  ProgressFunc
}

// Loader runs range loads against one upstream.
type Loader struct {
	client   *upstream.Client
	retry    *retry.Controller
	fetcher  *cache.Fetcher
	expander *daterange.Expander
	cfg      Config

	schemaMu sync.Mutex
	schema   *model.ItemSchema

	loads atomic.Int64
}

// NewLoader wires a loader. A nil fetcher disables caching.
func NewLoader(client *upstream.Client, rc *retry.Controller, fetcher *cache.Fetcher, expander *daterange.Expander, cfg Config) *Loader {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.Policy == "" {
		cfg.Policy = records.PolicyExact
	}
	if fetcher == nil {
		fetcher = cache.NewFetcher(nil)
	}
	if expander == nil {
		expander = daterange.Default()
	}
	return &Loader{
		client:   client,
		retry:    rc,
		fetcher:  fetcher,
		expander: expander,
		cfg:      cfg,
	}
}

// Retry returns the retry controller shared by every load.
func (l *Loader) Retry() *retry.Controller { return l.retry }

// Fetcher returns the read-through cache.
func (l *Loader) Fetcher() *cache.Fetcher { return l.fetcher }

// Expander returns the range validator.
func (l *Loader) Expander() *daterange.Expander { return l.expander }

// Config returns the loader settings.
func (l *Loader) Config() Config { return l.cfg }

// Loads returns how many range loads were started.
func (l *Loader) Loads() int64 { return l.loads.Load() }

// fetch reads one resource through the cache and the retry controller.
func (l *Loader) fetch(ctx context.Context, kind model.ResourceKind, date model.DateKey) ([]byte, error) {
	key := cache.Key{Date: date, Kind: kind}
	if !kind.IsDaily() {
		key.Date = model.DateKey{}
	}
	return l.fetcher.Get(ctx, key, func(ctx context.Context) ([]byte, error) {
		return retry.Fetch(ctx, l.retry, func(ctx context.Context, proxy upstream.Proxy) ([]byte, error) {
			return l.client.Fetch(ctx, kind, date, proxy)
		})
	})
}

// ItemSchema loads the item table once and keeps it for later loads.
func (l *Loader) ItemSchema(ctx context.Context) (*model.ItemSchema, error) {
	l.schemaMu.Lock()
	defer l.schemaMu.Unlock()

	if l.schema != nil {
		return l.schema, nil
	}

	data, err := l.fetch(ctx, model.ResourceItemSchema, model.DateKey{})
	if err != nil {
		return nil, fmt.Errorf("failed to load item schema: %w", err)
	}
	schema, err := upstream.DecodeItemSchema(data)
	if err != nil {
		return nil, err
	}
	l.schema = schema
	log.Printf("[Pipeline] Loaded item schema with %d entries", schema.Len())
	return schema, nil
}

// BotDrops loads bot_drops.txt.
func (l *Loader) BotDrops(ctx context.Context) (string, error) {
	data, err := l.fetch(ctx, model.ResourceBotDrops, model.DateKey{})
	if err != nil {
		return "", fmt.Errorf("failed to load bot drops: %w", err)
	}
	return upstream.DecodeBotDrops(data), nil
}

// Load fetches every day from start to end. Days fail independently and are
// listed in Result.Failed; only a range with no usable day at all returns
// *NoDataError. A canceled ctx discards everything fetched so far.
func (l *Loader) Load(ctx context.Context, start, end model.DateKey, opts Options) (*Result, error) {
	days, err := l.expander.Expand(start, end)
	if err != nil {
		return nil, err
	}
	l.loads.Add(1)
	began := time.Now()

	var warnings []string
	schema, err := l.ItemSchema(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Printf("[Pipeline] Warning: %v; item names unavailable", err)
		warnings = append(warnings, err.Error())
		schema = model.NewItemSchema(nil)
	}

	results := make([]dayResult, len(days))
	sem := semaphore.NewWeighted(int64(l.cfg.Concurrency))
	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)

	for i, d := range days {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, d model.DateKey) {
			defer wg.Done()
			defer sem.Release(1)

			results[i] = l.loadDay(ctx, d)
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(Progress{Done: int(n), Total: len(days), Date: d})
			}
		}(i, d)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Printf("[Pipeline] Load %s..%s aborted after %d/%d days", start, end, done.Load(), len(days))
		return nil, err
	}

	policy := l.cfg.Policy
	if opts.Policy != "" {
		policy = opts.Policy
	}
	shipsOnly := l.cfg.ShipsOnly
	if opts.ShipsOnly != nil {
		shipsOnly = *opts.ShipsOnly
	}

	res, err := l.merge(ctx, results, schema, policy, shipsOnly)
	if err != nil {
		return nil, err
	}
	res.Start, res.End = start, end
	res.Warnings = append(warnings, res.Warnings...)
	res.Elapsed = time.Since(began)

	if len(res.Days) == 0 {
		return nil, &NoDataError{Start: start, End: end, Failed: res.Failed}
	}

	log.Printf("[Pipeline] Loaded %s..%s: %d/%d days, %d records, %d ships, %d failures in %v",
		start, end, len(res.Days), len(days), len(res.Records), res.Ships.Len(), len(res.Failed), res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// dayResult is the outcome of one day's three sub-fetches.
type dayResult struct {
	date    model.DateKey
	summary *model.DailySummary
	ships   []model.ShipSnapshot
	log     []any
	dropped int
	missing map[model.ResourceKind]bool
	errs    map[model.ResourceKind]error
}

func (r *dayResult) usable() bool {
	return len(r.missing)+len(r.errs) < len(model.DailyResources)
}

// loadDay runs the day's sub-fetches in parallel and waits for all of them.
func (l *Loader) loadDay(ctx context.Context, date model.DateKey) dayResult {
	res := dayResult{
		date:    date,
		missing: make(map[model.ResourceKind]bool),
		errs:    make(map[model.ResourceKind]error),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	fail := func(kind model.ResourceKind, err error) {
		mu.Lock()
		defer mu.Unlock()
		if errors.Is(err, upstream.ErrMissingResource) {
			res.missing[kind] = true
			return
		}
		res.errs[kind] = err
	}

	for _, kind := range model.DailyResources {
		wg.Add(1)
		go func(kind model.ResourceKind) {
			defer wg.Done()

			data, err := l.fetch(ctx, kind, date)
			if err != nil {
				fail(kind, err)
				return
			}

			switch kind {
			case model.ResourceSummary:
				s, err := upstream.DecodeSummary(data, date)
				if err != nil {
					fail(kind, err)
					return
				}
				mu.Lock()
				res.summary = s
				mu.Unlock()
			case model.ResourceShips:
				ships, err := upstream.DecodeShips(data, date)
				if err != nil {
					fail(kind, err)
					return
				}
				mu.Lock()
				res.ships = ships
				mu.Unlock()
			case model.ResourceLog:
				entries, dropped := upstream.DecodeLog(data)
				mu.Lock()
				res.log, res.dropped = entries, dropped
				mu.Unlock()
			}
		}(kind)
	}
	wg.Wait()

	for kind, err := range res.errs {
		if ctx.Err() == nil {
			log.Printf("[Pipeline] %s %s failed: %v", date, kind, err)
		}
	}
	return res
}

// merge folds day results in date order. Log normalization runs in chunks.
func (l *Loader) merge(ctx context.Context, days []dayResult, schema *model.ItemSchema, policy records.Policy, shipsOnly bool) (*Result, error) {
	dedup := records.New(policy, shipsOnly)
	res := &Result{
		Ships:  aggregate.NewShips(),
		Schema: schema,
		Policy: policy,
	}

	for i := range days {
		d := &days[i]
		if d.date.IsZero() {
			continue
		}

		if !d.usable() && len(d.errs) == 0 {
			res.Failed = append(res.Failed, DateFailure{Date: d.date, Reason: ReasonNoData})
			continue
		}
		for _, kind := range model.DailyResources {
			if err, ok := d.errs[kind]; ok {
				res.Failed = append(res.Failed, DateFailure{Date: d.date, Resource: kind, Reason: err.Error()})
			}
		}
		if !d.usable() {
			continue
		}

		res.Days = append(res.Days, d.date)
		if d.summary != nil {
			res.Summaries = append(res.Summaries, *d.summary)
		}
		for _, s := range d.ships {
			res.Ships.Add(s)
		}

		res.Dropped += d.dropped
		entries := d.log
		if err := chunk.Each(ctx, len(entries), l.cfg.ChunkSize, func(i int) {
			dedup.AddRaw(entries[i], d.date)
		}); err != nil {
			return nil, err
		}
		d.log = nil
	}

	res.Records = dedup.Records()
	res.Dropped += dedup.Dropped()
	res.Filtered = dedup.Filtered()
	res.Totals = aggregate.Summaries(res.Summaries)
	if res.Dropped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d malformed log entries dropped", res.Dropped))
	}
	return res, nil
}
