package upstream

import (
	"fmt"
	"net/url"
	"strings"
)

// Proxy rewrites an upstream URL so the request goes through a relay.
type Proxy interface {
	Name() string
	Transform(target string) string
}

// Direct sends requests straight to the upstream.
type Direct struct{}

func (Direct) Name() string                   { return "direct" }
func (Direct) Transform(target string) string { return target }

// QueryProxy passes the target as an escaped query value, e.g. proxy.php?path=
// or a public CORS relay taking ?url=. When Base is set only the part of the
// target below Base is passed.
type QueryProxy struct {
	Prefix string
	Base   string
}

func (p QueryProxy) Name() string { return p.Prefix }

func (p QueryProxy) Transform(target string) string {
	value := target
	if p.Base != "" {
		value = strings.TrimPrefix(strings.TrimPrefix(target, p.Base), "/")
	}
	return p.Prefix + url.QueryEscape(value)
}

// MountProxy serves the upstream host below a path, like /proxy/prod/econ/...
type MountProxy struct {
	Prefix string
	Host   string
}

func (p MountProxy) Name() string { return p.Prefix }

func (p MountProxy) Transform(target string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(target, p.Host), "/")
	return strings.TrimRight(p.Prefix, "/") + "/" + rest
}

// ParseProxies builds the fallback chain from config entries:
//
//	direct
//	path:<prefix>   relative path as a query value (prefix ends in ?path=)
//	url:<prefix>    full URL as a query value
//	mount:<prefix>  upstream host mounted under prefix
func ParseProxies(specs []string, baseURL string) ([]Proxy, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}
	host := base.Scheme + "://" + base.Host

	proxies := make([]Proxy, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if spec == "direct" {
			proxies = append(proxies, Direct{})
			continue
		}

		kind, prefix, ok := strings.Cut(spec, ":")
		if !ok || prefix == "" {
			return nil, fmt.Errorf("invalid proxy %q: want direct, path:, url: or mount:", spec)
		}
		switch kind {
		case "path":
			proxies = append(proxies, QueryProxy{Prefix: prefix, Base: strings.TrimRight(baseURL, "/")})
		case "url":
			proxies = append(proxies, QueryProxy{Prefix: prefix})
		case "mount":
			proxies = append(proxies, MountProxy{Prefix: prefix, Host: host})
		default:
			return nil, fmt.Errorf("invalid proxy kind %q in %q", kind, spec)
		}
	}
	return proxies, nil
}
