package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econscour/internal/cache"
	"econscour/internal/daterange"
	"econscour/internal/model"
	"econscour/internal/pipeline"
	"econscour/internal/repository"
	"econscour/internal/retry"
	"econscour/internal/session"
	"econscour/internal/upstream"
	"econscour/pkg/apierror"
	"econscour/pkg/response"
)

const (
	testSummary = `{"count_ships":2,"count_logs":4,"items_held":{"1":100,"2":5},"items_moved":{"1":9},"items_new":[]}`
	testShips   = `[{"hex_code":"{AB12}","name":"Alpha","color":1,"items":{"1":10}},{"hex_code":"{CD34}","name":"Beta","color":2,"items":{"2":1}}]`
	testLog     = `[{"time":100,"zone":"Freeport I","src":"{AB12}","dst":"{CD34}","item":1,"count":2},` +
		`{"time":100,"zone":"Freeport I","src":"{AB12}","dst":"{CD34}","item":1,"count":2},` +
		`{"time":150,"zone":"Freeport I","src":"hatch","dst":"{AB12}","item":2,"count":1},` +
		`{"time":160,"zone":"Freeport I","src":"{CD34}","dst":"","item":1,"count":5}]`
	testSchema = `[{"id":1,"name":"Iron","type":"resource"},{"id":2,"name":"Explosives","type":"resource"}]`
)

var testDay = model.DateKey{Year: 2022, Month: time.November, Day: 23}

func gz(s string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(s))
	_ = zw.Close()
	return buf.Bytes()
}

// envelope mirrors the response and error bodies.
type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Meta     *response.Meta  `json:"meta"`
	Warnings []string        `json:"warnings"`
	Error    *apierror.Error `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func newTestSession(t *testing.T, settings repository.SettingsRepository) *session.Controller {
	t.Helper()

	files := map[string][]byte{
		"item_schema.json":         []byte(testSchema),
		"bot_drops.txt":            []byte("Iron: 5\nFlux: 1"),
		"2022_11_23/summary.json":  []byte(testSummary),
		"2022_11_23/ships.json.gz": gz(testShips),
		"2022_11_23/log.json.gz":   gz(testLog),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	loader := pipeline.NewLoader(
		upstream.NewClient(upstream.Options{BaseURL: srv.URL}),
		retry.New(retry.Config{MaxRetries: 1}),
		cache.NewFetcher(nil),
		daterange.Default(),
		pipeline.Config{},
	)
	return session.New(loader, settings)
}

func loadedSession(t *testing.T) *session.Controller {
	t.Helper()
	s := newTestSession(t, nil)
	_, err := s.Run(context.Background(), session.Request{Start: testDay, End: testDay.AddDays(1)})
	require.NoError(t, err)
	return s
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSummary_NoLoad(t *testing.T) {
	h := NewEconHandler(newTestSession(t, nil))

	rec := get(h.Summary, "/api/v1/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSummary(t *testing.T) {
	h := NewEconHandler(loadedSession(t))

	rec := get(h.Summary, "/api/v1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode(t, rec)
	var got SummaryResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))

	assert.Equal(t, "2022-11-23", got.Start)
	assert.Equal(t, "2022-11-24", got.End)
	assert.Equal(t, 3, got.Records)
	assert.Equal(t, 2, got.Ships)
	assert.Equal(t, "exact", got.Policy)
	assert.Equal(t, int64(100), got.Totals.ItemsHeld[1])
	require.NotEmpty(t, got.TopHeld)
	assert.Equal(t, "Iron", got.TopHeld[0].Name)
	require.Len(t, got.Failed, 1)
	assert.Equal(t, "2022-11-24", got.Failed[0].Date.String())
}

func TestRecords(t *testing.T) {
	h := NewEconHandler(loadedSession(t))

	tests := []struct {
		name   string
		target string
		total  int
		items  int
		page   int
	}{
		{"all", "/api/v1/records", 3, 3, 1},
		{"by item", "/api/v1/records?item=iron", 2, 2, 1},
		{"by item id", "/api/v1/records?item=2", 1, 1, 1},
		{"ship names", "/api/v1/records?ship_names=true&src=alpha", 1, 1, 1},
		{"offset window", "/api/v1/records?offset=1&limit=1", 3, 1, 2},
		{"page clamped", "/api/v1/records?page=9&limit=2", 3, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(h.Records, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			env := decode(t, rec)
			var rows []map[string]any
			require.NoError(t, json.Unmarshal(env.Data, &rows))
			assert.Len(t, rows, tt.items)
			require.NotNil(t, env.Meta)
			assert.Equal(t, tt.total, env.Meta.Total)
			assert.Equal(t, tt.page, env.Meta.Page)
		})
	}
}

func TestRecords_ShipNamesInDisplay(t *testing.T) {
	h := NewEconHandler(loadedSession(t))

	rec := get(h.Records, "/api/v1/records?ship_names=1&item=iron&dst=beta")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Repetitions int    `json:"repetitions"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Alpha {AB12}", rows[0].Source)
	assert.Equal(t, "Beta {CD34}", rows[0].Destination)
	assert.Equal(t, 2, rows[0].Repetitions)
}

func TestRecords_BadParams(t *testing.T) {
	h := NewEconHandler(loadedSession(t))

	for _, target := range []string{
		"/api/v1/records?hide_bots=maybe",
		"/api/v1/records?limit=-1",
		"/api/v1/records?offset=x",
		"/api/v1/records?page=two",
	} {
		rec := get(h.Records, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code, target)
	}
}

func TestShips(t *testing.T) {
	h := NewEconHandler(loadedSession(t))

	rec := get(h.Ships, "/api/v1/ships")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode(t, rec).Meta.Total)

	rec = get(h.Ships, "/api/v1/ships?name=bet*")
	require.Equal(t, http.StatusOK, rec.Code)
	var ships []struct {
		HexCode string `json:"hex_code"`
		Name    string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &ships))
	require.Len(t, ships, 1)
	assert.Equal(t, "CD34", ships[0].HexCode)
}

func TestShipHistory(t *testing.T) {
	h := NewEconHandler(loadedSession(t))
	r := chi.NewRouter()
	r.Get("/ships/{hex}/history", h.ShipHistory)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ships/ab12/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		HexCode string   `json:"hex_code"`
		Names   []string `json:"names"`
		History []any    `json:"history"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, "AB12", got.HexCode)
	assert.Equal(t, []string{"Alpha"}, got.Names)
	assert.Len(t, got.History, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ships/FFFF/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItemsAndBotDrops(t *testing.T) {
	h := NewEconHandler(newTestSession(t, nil))

	rec := get(h.Items, "/api/v1/items?q=explo")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []model.ItemSchemaEntry
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &items))
	assert.Equal(t, []model.ItemSchemaEntry{{ID: 2, Name: "Explosives", Type: "resource"}}, items)

	rec = get(h.BotDrops, "/api/v1/bot-drops")
	require.Equal(t, http.StatusOK, rec.Code)
	var drops struct {
		Content string `json:"content"`
		Lines   int    `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &drops))
	assert.Equal(t, "Iron: 5\nFlux: 1", drops.Content)
	assert.Equal(t, 2, drops.Lines)
}

func post(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestLoadHandler_Start(t *testing.T) {
	s := newTestSession(t, nil)
	h := NewLoadHandler(s)

	rec := post(h.Start, http.MethodPost, "/api/v1/loads", `{"start":"2022-11-23","end":"2022_11_23","policy":"aggregate"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	rec = get(h.Current, "/api/v1/loads/current")
	require.Equal(t, http.StatusOK, rec.Code)
	var status session.Status
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &status))
	assert.Equal(t, session.PhaseIdle, status.Phase)
	assert.True(t, status.Loaded)

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "aggregate", string(res.Policy))
}

func TestLoadHandler_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    string
		details int
	}{
		{"bad json", `{"start":`, "BAD_REQUEST", 0},
		{"bad dates", `{"start":"soon","end":"later"}`, "VALIDATION_ERROR", 2},
		{"bad policy", `{"start":"2022-11-23","end":"2022-11-23","policy":"fuzzy"}`, "VALIDATION_ERROR", 1},
		{"reversed range", `{"start":"2022-11-24","end":"2022-11-23"}`, "VALIDATION_ERROR", 2},
		{"before first day", `{"start":"2020-01-01","end":"2020-01-02"}`, "VALIDATION_ERROR", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLoadHandler(newTestSession(t, nil))
			rec := post(h.Start, http.MethodPost, "/api/v1/loads", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			env := decode(t, rec)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Len(t, env.Error.Details, tt.details)
		})
	}
}

func TestLoadHandler_AbortIdle(t *testing.T) {
	h := NewLoadHandler(newTestSession(t, nil))

	rec := post(h.Abort, http.MethodDelete, "/api/v1/loads/current", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode(t, rec).Error.Code)
}

func TestSettingsHandler_NoStore(t *testing.T) {
	h := NewSettingsHandler(newTestSession(t, nil))

	rec := get(h.Get, "/api/v1/settings")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Settings
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, model.DefaultSettings(), got)

	rec = post(h.Put, http.MethodPut, "/api/v1/settings", `{"font_size":14}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSettingsHandler_RoundTrip(t *testing.T) {
	repo, err := repository.NewSQLiteSettingsRepository(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	h := NewSettingsHandler(newTestSession(t, repo))

	rec := post(h.Put, http.MethodPut, "/api/v1/settings?profile=night", `{"font_size":16,"dark_mode":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = get(h.Get, "/api/v1/settings?profile=night")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Settings
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, 16, got.FontSize)
	assert.True(t, got.DarkMode)
	assert.True(t, got.ShowBots)

	rec = post(h.Put, http.MethodPut, "/api/v1/settings", `{"font_size":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)

	rec = post(h.Put, http.MethodPut, "/api/v1/settings", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
