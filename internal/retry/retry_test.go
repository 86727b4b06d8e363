package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econscour/internal/upstream"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func transient() error {
	return &upstream.UpstreamFetchError{URL: "u", StatusCode: 503}
}

func TestDo_SucceedsAfterTwoRetries(t *testing.T) {
	rec := &sleepRecorder{}
	c := New(Config{MaxRetries: 3, BaseDelay: time.Second, Sleep: rec.sleep})

	calls := 0
	got, err := Fetch(context.Background(), c, func(ctx context.Context, _ upstream.Proxy) (string, error) {
		calls++
		if calls < 3 {
			return "", transient()
		}
		return "payload", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), c.Retries())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestNew_DirectChainUsesMaxRetries(t *testing.T) {
	c := New(Config{MaxRetries: 3, RetriesPerProxy: 2, Proxies: []upstream.Proxy{upstream.Direct{}}, Sleep: (&sleepRecorder{}).sleep})
	assert.Equal(t, 3, c.MaxAttempts())

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context, proxy upstream.Proxy) error {
		calls++
		assert.Equal(t, "direct", proxy.Name())
		if calls < 3 {
			return transient()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), c.Retries())

	mixed := New(Config{MaxRetries: 3, RetriesPerProxy: 2, Proxies: []upstream.Proxy{upstream.Direct{}, upstream.QueryProxy{Prefix: "https://mirror.example/?path="}}})
	assert.Equal(t, 4, mixed.MaxAttempts())
}

func TestDo_MissingResourceSkipsBackoff(t *testing.T) {
	rec := &sleepRecorder{}
	c := New(Config{MaxRetries: 3, BaseDelay: time.Second, Sleep: rec.sleep})

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context, _ upstream.Proxy) error {
		calls++
		return upstream.ErrMissingResource
	})

	assert.ErrorIs(t, err, upstream.ErrMissingResource)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
	assert.Zero(t, c.Retries())
}

func TestDo_Exhausted(t *testing.T) {
	rec := &sleepRecorder{}
	c := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: rec.sleep})

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context, _ upstream.Proxy) error {
		calls++
		return transient()
	})

	var exhausted *ExhaustedRetriesError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.delays, 2)

	var fetchErr *upstream.UpstreamFetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestDo_PermanentErrorStops(t *testing.T) {
	c := New(Config{MaxRetries: 3, Sleep: (&sleepRecorder{}).sleep})

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context, _ upstream.Proxy) error {
		calls++
		return &upstream.UpstreamFetchError{URL: "u", StatusCode: 403}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ProxyRotationIsSticky(t *testing.T) {
	proxies := []upstream.Proxy{
		upstream.QueryProxy{Prefix: "a?url="},
		upstream.QueryProxy{Prefix: "b?url="},
		upstream.QueryProxy{Prefix: "c?url="},
	}
	c := New(Config{RetriesPerProxy: 2, Proxies: proxies, Sleep: (&sleepRecorder{}).sleep})
	assert.Equal(t, 6, c.MaxAttempts())

	var used []string
	err := c.Do(context.Background(), func(ctx context.Context, p upstream.Proxy) error {
		used = append(used, p.Name())
		if p.Name() == "a?url=" {
			return transient()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a?url=", "b?url="}, used)

	// the next call starts on the proxy that worked
	assert.Equal(t, "b?url=", c.CurrentProxy().Name())
	used = nil
	require.NoError(t, c.Do(context.Background(), func(ctx context.Context, p upstream.Proxy) error {
		used = append(used, p.Name())
		return nil
	}))
	assert.Equal(t, []string{"b?url="}, used)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Config{MaxRetries: 3})
	err := c.Do(ctx, func(ctx context.Context, _ upstream.Proxy) error {
		t.Fatal("fn must not run after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
