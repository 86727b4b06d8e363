package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"econscour/pkg/apierror"
	"econscour/pkg/response"

	"github.com/go-chi/chi/v5"
)

// forwardedHeaders are copied from the upstream response.
var forwardedHeaders = []string{
	"Content-Type",
	"Content-Encoding",
	"Content-Length",
	"Last-Modified",
	"ETag",
	"Cache-Control",
}

// ProxyConfig configures the restricted upstream passthrough.
type ProxyConfig struct {
	AllowedPrefix string
	Timeout       time.Duration
	MaxRedirects  int
	UserAgent     string
	// Transport is used instead of http.DefaultTransport when set.
	Transport http.RoundTripper
}

// ProxyHandler forwards GET requests to a single fixed upstream prefix. Any
// target outside the prefix is rejected so the handler cannot be used as an
// open proxy.
type ProxyHandler struct {
	prefix    *url.URL
	client    *http.Client
	userAgent string
}

// NewProxyHandler creates a proxy handler.
func NewProxyHandler(cfg ProxyConfig) (*ProxyHandler, error) {
	prefix, err := url.Parse(cfg.AllowedPrefix)
	if err != nil || prefix.Scheme == "" || prefix.Host == "" {
		return nil, fmt.Errorf("invalid proxy prefix %q", cfg.AllowedPrefix)
	}
	if !strings.HasSuffix(prefix.Path, "/") {
		prefix.Path += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}

	h := &ProxyHandler{prefix: prefix, userAgent: cfg.UserAgent}
	h.client = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			if !h.allowed(req.URL) {
				return fmt.Errorf("redirect to %s leaves the allowed prefix", req.URL.Redacted())
			}
			return nil
		},
	}
	return h, nil
}

// allowed reports whether u stays inside the configured prefix.
func (h *ProxyHandler) allowed(u *url.URL) bool {
	if u.User != nil || !strings.EqualFold(u.Scheme, h.prefix.Scheme) || !strings.EqualFold(u.Host, h.prefix.Host) {
		return false
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." {
			return false
		}
	}
	cleaned := path.Clean("/" + u.Path)
	return strings.HasPrefix(cleaned+"/", h.prefix.Path) && cleaned+"/" != h.prefix.Path
}

// Target resolves the upstream URL of a request from ?url=, ?path= or the
// wildcard route segment.
func (h *ProxyHandler) Target(r *http.Request) (*url.URL, *apierror.Error) {
	q := r.URL.Query()
	raw := q.Get("url")
	if raw == "" {
		rel := q.Get("path")
		if rel == "" {
			rel = chi.URLParam(r, "*")
		}
		if rel == "" {
			return nil, apierror.BadRequest("No path provided")
		}
		raw = h.prefix.String() + strings.TrimLeft(rel, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, apierror.BadRequest("Invalid URL")
	}
	if !h.allowed(u) {
		return nil, apierror.Forbidden("Invalid URL")
	}
	u.Fragment = ""
	return u, nil
}

// ServeHTTP handles GET /proxy and GET /proxy/*
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, apiErr := h.Target(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		response.Error(w, apierror.BadRequest("Invalid URL"))
		return
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	// An explicit Accept-Encoding keeps the body and its Content-Encoding untouched.
	if ae := r.Header.Get("Accept-Encoding"); ae != "" {
		req.Header.Set("Accept-Encoding", ae)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("[Proxy] GET %s failed: %v", target.Redacted(), err)
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			response.Error(w, apierror.GatewayTimeout("Proxy error: upstream timed out"))
			return
		}
		response.Error(w, apierror.BadGateway("Proxy error: "+err.Error()))
		return
	}
	defer resp.Body.Close()

	for _, name := range forwardedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[Proxy] Copy of %s interrupted: %v", target.Redacted(), err)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
