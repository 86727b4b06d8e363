package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econscour/internal/model"
)

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

var day = model.DateKey{Year: 2022, Month: time.November, Day: 23}

func TestClient_URL(t *testing.T) {
	c := NewClient(Options{BaseURL: "https://example.test/econ/"})
	assert.Equal(t, "https://example.test/econ/2022_11_23/log.json.gz", c.URL(model.ResourceLog, day))
	assert.Equal(t, "https://example.test/econ/item_schema.json", c.URL(model.ResourceItemSchema, day))

	jan := model.DateKey{Year: 2023, Month: time.January, Day: 5}
	assert.Equal(t, "https://example.test/econ/2023_1_5/summary.json", c.URL(model.ResourceSummary, jan))

	padded := NewClient(Options{BaseURL: "https://example.test/econ", PadDates: true})
	assert.Equal(t, "https://example.test/econ/2023_01_05/summary.json", padded.URL(model.ResourceSummary, jan))
}

func TestClient_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/2022_11_23/log.json.gz":
			_, _ = w.Write(gz(t, `[{"time":1}]`))
		case "/2022_11_23/summary.json":
			_, _ = w.Write([]byte(`{"count_ships":2}`))
		case "/2022_11_23/ships.json.gz":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, UserAgent: "test-agent"})
	ctx := context.Background()

	data, err := c.Fetch(ctx, model.ResourceLog, day, nil)
	require.NoError(t, err)
	assert.Equal(t, `[{"time":1}]`, string(data))
	assert.Equal(t, "test-agent", gotUA)

	data, err = c.Fetch(ctx, model.ResourceSummary, day, Direct{})
	require.NoError(t, err)
	assert.Equal(t, `{"count_ships":2}`, string(data))

	_, err = c.Fetch(ctx, model.ResourceItemSchema, day, nil)
	assert.ErrorIs(t, err, ErrMissingResource)

	_, err = c.Fetch(ctx, model.ResourceShips, day, nil)
	var fetchErr *UpstreamFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	assert.True(t, IsTransient(err))
}

func TestClient_FetchThroughQueryProxy(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	proxies, err := ParseProxies([]string{"path:" + srv.URL + "/proxy?path="}, "https://pub.drednot.io/prod/econ")
	require.NoError(t, err)
	require.Len(t, proxies, 1)

	c := NewClient(Options{BaseURL: "https://pub.drednot.io/prod/econ"})
	_, err = c.Fetch(context.Background(), model.ResourceLog, day, proxies[0])
	require.NoError(t, err)
	assert.Equal(t, "2022_11_23/log.json.gz", gotPath)
}

func TestClient_FetchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(Options{BaseURL: srv.URL}).Fetch(ctx, model.ResourceLog, day, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransient(err))
}

func TestParseProxies(t *testing.T) {
	base := "https://pub.drednot.io/prod/econ"
	proxies, err := ParseProxies([]string{"direct", "url:https://relay.test/?url=", "mount:/proxy", " "}, base)
	require.NoError(t, err)
	require.Len(t, proxies, 3)

	target := base + "/2022_11_23/log.json.gz"
	assert.Equal(t, target, proxies[0].Transform(target))
	assert.Equal(t, "https://relay.test/?url=https%3A%2F%2Fpub.drednot.io%2Fprod%2Fecon%2F2022_11_23%2Flog.json.gz", proxies[1].Transform(target))
	assert.Equal(t, "/proxy/prod/econ/2022_11_23/log.json.gz", proxies[2].Transform(target))

	_, err = ParseProxies([]string{"socks:whatever"}, base)
	assert.Error(t, err)
	_, err = ParseProxies([]string{"path:"}, base)
	assert.Error(t, err)
}

func TestUpstreamFetchError_Transient(t *testing.T) {
	cases := map[int]bool{0: true, 404: false, 400: false, 403: false, 408: true, 425: true, 429: true, 500: true, 503: true}
	for status, want := range cases {
		err := &UpstreamFetchError{URL: "x", StatusCode: status, Err: errors.New("boom")}
		assert.Equal(t, want, err.Transient(), "status %d", status)
	}
	assert.False(t, IsTransient(ErrMissingResource))
}

func TestDecompress(t *testing.T) {
	plain := []byte(`{"a":1}`)

	out, err := Decompress(plain, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	out, err = Decompress(gz(t, string(plain)), 0)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = Decompress([]byte{0x1f, 0x8b, 0x00}, 0)
	assert.Error(t, err)
}

func TestDecodeLog_Strict(t *testing.T) {
	entries, dropped := DecodeLog([]byte(`[{"time":1,"item":2},{"time":3,"item":4}]`))
	assert.Len(t, entries, 2)
	assert.Zero(t, dropped)

	entries, dropped = DecodeLog(nil)
	assert.Empty(t, entries)
	assert.Zero(t, dropped)
}

func TestDecodeLog_TruncatedTail(t *testing.T) {
	payload := `[{"time":1,"zone":"Freeport I","src":"{AB}","dst":"{CD}","item":5,"count":2},{"time":2,"zone":"Free`

	entries, dropped := DecodeLog([]byte(payload))
	require.Len(t, entries, 1)
	assert.Equal(t, 1, dropped)

	obj, ok := entries[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "{AB}", obj["src"])
}

func TestDecodeLog_CommaJoinedArrays(t *testing.T) {
	payload := `[{"time":1,"zone":"a}b"}],[{"time":2},{"time":}]`

	entries, dropped := DecodeLog([]byte(payload))
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, dropped)
}

func TestDecodeShips(t *testing.T) {
	payload := `[{"hex_code":"{ab12}","name":"Red","color":123,"items":{"1":5,"7":2.0}},{"hex_code":"","name":"ghost"}]`

	ships, err := DecodeShips([]byte(payload), day)
	require.NoError(t, err)
	require.Len(t, ships, 1)
	assert.Equal(t, "AB12", ships[0].HexCode)
	assert.Equal(t, 123, ships[0].Color)
	assert.Equal(t, map[int]int64{1: 5, 7: 2}, ships[0].Items)
	assert.Equal(t, day, ships[0].Date)

	_, err = DecodeShips([]byte(`{not json`), day)
	var malformed *MalformedPayloadError
	assert.True(t, errors.As(err, &malformed))
}

func TestDecodeSummary(t *testing.T) {
	payload := `{"count_ships":10,"count_logs":200,"items_held":{"1":50},"items_moved":{"1":7,"2":3},"items_new":[{"zone":"Z","item":1,"total":4,"src":"bot"}]}`

	s, err := DecodeSummary([]byte(payload), day)
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.CountShips)
	assert.Equal(t, int64(200), s.CountLogs)
	assert.Equal(t, map[int]int64{1: 50}, s.ItemsHeld)
	assert.Equal(t, map[int]int64{1: 7, 2: 3}, s.ItemsMoved)
	require.Len(t, s.ItemsNew, 1)
	assert.Equal(t, int64(4), s.ItemsNew[0].Total)
}

func TestDecodeItemSchema(t *testing.T) {
	schema, err := DecodeItemSchema([]byte(`[{"id":1,"name":"Iron","type":"resource"}]`))
	require.NoError(t, err)
	assert.Equal(t, "Iron", schema.Name(1))
	assert.Equal(t, "Item 2", schema.Name(2))
}
