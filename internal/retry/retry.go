// Package retry wraps upstream calls with bounded retries, linear backoff and
// sticky proxy failover.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"econscour/internal/upstream"
)

// ExhaustedRetriesError is returned once every attempt failed.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// Config holds the retry policy.
type Config struct {
	MaxRetries      int           // attempts when no proxy chain is configured
	BaseDelay       time.Duration // backoff before attempt n+1 is n*BaseDelay
	RetriesPerProxy int
	Proxies         []upstream.Proxy
	// Sleep replaces the context-aware wait between attempts, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Controller runs calls under the retry policy. The active proxy is shared by
// every call and only moves when the proxy in use fails.
type Controller struct {
	cfg     Config
	mu      sync.Mutex
	current int
	retries atomic.Int64
}

// New creates a controller.
func New(cfg Config) *Controller {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetriesPerProxy < 1 {
		cfg.RetriesPerProxy = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if directOnly(cfg.Proxies) {
		cfg.Proxies = nil
	}
	return &Controller{cfg: cfg}
}

// directOnly reports whether the chain never leaves the upstream. Such a chain
// runs under MaxRetries rather than the per-proxy budget.
func directOnly(proxies []upstream.Proxy) bool {
	for _, p := range proxies {
		if _, ok := p.(upstream.Direct); !ok {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaxAttempts is the attempt budget of a single call: RetriesPerProxy for each
// proxy in a chain, MaxRetries otherwise.
func (c *Controller) MaxAttempts() int {
	if n := len(c.cfg.Proxies); n > 0 {
		return n * c.cfg.RetriesPerProxy
	}
	return c.cfg.MaxRetries
}

// Retries returns how many retries were issued since the controller was created.
func (c *Controller) Retries() int64 {
	return c.retries.Load()
}

// CurrentProxy returns the proxy the next call starts with.
func (c *Controller) CurrentProxy() upstream.Proxy {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cfg.Proxies) == 0 {
		return upstream.Direct{}
	}
	return c.cfg.Proxies[c.current]
}

func (c *Controller) proxyIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// advance moves past failed unless another call already did.
func (c *Controller) advance(failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != failed || len(c.cfg.Proxies) < 2 {
		return
	}
	c.current = (c.current + 1) % len(c.cfg.Proxies)
	log.Printf("[Retry] Switching to proxy %s", c.cfg.Proxies[c.current].Name())
}

// Do calls fn until it succeeds, fails permanently or the budget runs out.
// ErrMissingResource is returned at once without backoff.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context, proxy upstream.Proxy) error) error {
	attempts := c.MaxAttempts()
	var last error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := c.proxyIndex()
		var proxy upstream.Proxy = upstream.Direct{}
		if len(c.cfg.Proxies) > 0 {
			proxy = c.cfg.Proxies[idx]
		}

		err := fn(ctx, proxy)
		if err == nil {
			return nil
		}
		if errors.Is(err, upstream.ErrMissingResource) {
			return err
		}
		if !upstream.IsTransient(err) {
			return err
		}

		last = err
		c.advance(idx)
		if attempt == attempts {
			break
		}

		c.retries.Add(1)
		log.Printf("[Retry] Attempt %d/%d failed via %s: %v", attempt, attempts, proxy.Name(), err)
		if err := c.cfg.Sleep(ctx, time.Duration(attempt)*c.cfg.BaseDelay); err != nil {
			return err
		}
	}

	return &ExhaustedRetriesError{Attempts: attempts, Last: last}
}

// Fetch is Do for calls that produce a value.
func Fetch[T any](ctx context.Context, c *Controller, fn func(ctx context.Context, proxy upstream.Proxy) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, func(ctx context.Context, proxy upstream.Proxy) error {
		v, err := fn(ctx, proxy)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
