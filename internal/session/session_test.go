package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econscour/internal/cache"
	"econscour/internal/daterange"
	"econscour/internal/model"
	"econscour/internal/pipeline"
	"econscour/internal/repository"
	"econscour/internal/retry"
	"econscour/internal/upstream"
)

const summary = `{"count_ships":1,"count_logs":2,"items_held":{"1":3},"items_moved":{},"items_new":[]}`

func newController(t *testing.T, delay time.Duration, settings repository.SettingsRepository) *Controller {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		switch {
		case r.URL.Path == "/item_schema.json":
			_, _ = w.Write([]byte(`[]`))
		case strings.HasSuffix(r.URL.Path, "/summary.json"):
			_, _ = w.Write([]byte(summary))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	loader := pipeline.NewLoader(
		upstream.NewClient(upstream.Options{BaseURL: srv.URL}),
		retry.New(retry.Config{MaxRetries: 1}),
		cache.NewFetcher(nil),
		daterange.Default(),
		pipeline.Config{Concurrency: 1},
	)
	return New(loader, settings)
}

func req(days int) Request {
	start := model.DateKey{Year: 2022, Month: time.November, Day: 23}
	return Request{Start: start, End: start.AddDays(days - 1)}
}

func TestStart_RejectsReentry(t *testing.T) {
	c := newController(t, 20*time.Millisecond, nil)
	ctx := context.Background()

	id, err := c.Start(ctx, req(3))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, PhaseLoading, c.Status().Phase)

	_, err = c.Start(ctx, req(1))
	assert.ErrorIs(t, err, ErrLoadInProgress)

	require.NoError(t, c.Wait(ctx))

	st := c.Status()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, id, st.LoadID)
	assert.True(t, st.Loaded)
	assert.Equal(t, 3, st.Progress.Done)
	assert.Empty(t, st.Error)

	res, err := c.Result()
	require.NoError(t, err)
	assert.Len(t, res.Summaries, 3)

	// idle again, so a new load is accepted
	id2, err := c.Start(ctx, req(1))
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	require.NoError(t, c.Wait(ctx))
}

func TestStart_InvalidRangeFailsFast(t *testing.T) {
	c := newController(t, 0, nil)
	r := req(1)
	r.Start, r.End = r.End.AddDays(1), r.Start

	_, err := c.Start(context.Background(), r)
	var rangeErr *daterange.InvalidRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, PhaseIdle, c.Status().Phase)
}

func TestAbort(t *testing.T) {
	c := newController(t, 50*time.Millisecond, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.Abort(), ErrNotLoading)

	_, err := c.Start(ctx, req(30))
	require.NoError(t, err)
	require.NoError(t, c.Abort())
	assert.Equal(t, PhaseAborting, c.Status().Phase)
	require.NoError(t, c.Abort(), "aborting twice is harmless")

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(waitCtx))

	st := c.Status()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.Loaded)
	assert.Less(t, st.Progress.Done, 30)

	_, err = c.Result()
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestRun_NoData(t *testing.T) {
	c := newController(t, 0, nil)
	r := req(1)
	r.Start = model.DateKey{Year: 2023, Month: time.January, Day: 1}
	r.End = r.Start

	// serve nothing for the day: swap to a loader whose upstream only 404s
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c.loader = pipeline.NewLoader(upstream.NewClient(upstream.Options{BaseURL: srv.URL}),
		retry.New(retry.Config{MaxRetries: 1}), nil, nil, pipeline.Config{})

	_, err := c.Run(context.Background(), r)
	var noData *pipeline.NoDataError
	require.True(t, errors.As(err, &noData))

	st := c.Status()
	assert.NotEmpty(t, st.Error)
	require.Len(t, st.Failed, 1)
	assert.Equal(t, r.Start, st.Failed[0].Date)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()

	c := newController(t, 0, nil)
	s, err := c.Settings(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), s)
	assert.ErrorIs(t, c.SaveSettings(ctx, "", s), ErrNoSettingsStore)

	repo, err := repository.NewSQLiteSettingsRepository(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer repo.Close()

	c = newController(t, 0, repo)
	s.UseShipNames = true
	require.NoError(t, c.SaveSettings(ctx, "", s))
	got, err := c.Settings(ctx, "")
	require.NoError(t, err)
	assert.True(t, got.UseShipNames)

	s.FontSize = 0
	assert.ErrorIs(t, c.SaveSettings(ctx, "", s), repository.ErrInvalidSettings)
}
