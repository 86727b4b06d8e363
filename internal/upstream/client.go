// Package upstream fetches and decodes the daily econ dumps published by the game.
// It does not cache or retry; see the cache and retry packages.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"econscour/internal/config"
	"econscour/internal/model"
)

const (
	DefaultBaseURL   = "https://pub.drednot.io/prod/econ"
	DefaultUserAgent = "web-econscourer/1.0"
	DefaultMaxBody   = 512 << 20
)

var gzipMagic = []byte{0x1f, 0x8b}

// Client issues GET requests for econ resources.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	padDates   bool
	maxBody    int64
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	PadDates   bool
	MaxBody    int64
	HTTPClient *http.Client
}

// NewClient creates an upstream client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		padDates:   opts.PadDates,
		maxBody:    opts.MaxBody,
	}
}

// NewClientFromConfig creates a client from the upstream config group.
func NewClientFromConfig(cfg config.UpstreamConfig) *Client {
	return NewClient(Options{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		PadDates:  cfg.PadDates,
		MaxBody:   cfg.MaxBody,
	})
}

// BaseURL returns the upstream root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the upstream location of a resource. Daily resources live under
// a YYYY_M_D directory, static ones at the root.
func (c *Client) URL(kind model.ResourceKind, date model.DateKey) string {
	if !kind.IsDaily() {
		return c.baseURL + "/" + kind.FileName()
	}
	dir := date.Path()
	if c.padDates {
		dir = date.PaddedPath()
	}
	return c.baseURL + "/" + dir + "/" + kind.FileName()
}

// Fetch downloads a resource through proxy and returns its decompressed body.
// A nil proxy means a direct request.
func (c *Client) Fetch(ctx context.Context, kind model.ResourceKind, date model.DateKey, proxy Proxy) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	if proxy == nil {
		proxy = Direct{}
	}
	target := proxy.Transform(c.URL(kind, date))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UpstreamFetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, ErrMissingResource
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamFetchError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UpstreamFetchError{URL: target, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, &MalformedPayloadError{Kind: kind, Err: fmt.Errorf("body exceeds %d bytes", c.maxBody)}
	}

	data, err := Decompress(body, c.maxBody)
	if err != nil {
		return nil, &MalformedPayloadError{Kind: kind, Err: err}
	}
	return data, nil
}

// Decompress gunzips data when it starts with the gzip magic number and returns
// it unchanged otherwise. Relays that decode transparently hand back plain JSON
// for .gz files, so the file extension is not trusted.
func Decompress(data []byte, limit int64) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()

	if limit <= 0 {
		limit = DefaultMaxBody
	}
	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0 {
			// truncated stream; keep what inflated and let the decoder recover records
			log.Printf("[Upstream] Warning: truncated gzip stream, kept %d bytes", len(out))
			return out, nil
		}
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", limit)
	}
	return out, nil
}
