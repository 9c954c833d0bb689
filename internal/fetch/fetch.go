// Package fetch retrieves site resources by absolute path or URL.
//
// Candidates produced by the location package are absolute paths relative
// to the site origin. The origin can be an HTTP(S) host, a local directory
// holding the published site, or an S3 bucket prefix.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/leapstack-labs/roadlens/internal/location"
)

// DefaultTimeout bounds a single fetch.
const DefaultTimeout = 30 * time.Second

// Fetcher retrieves the bytes at a candidate path or absolute URL.
// Implementations must not serve cached copies.
type Fetcher interface {
	Fetch(ctx context.Context, candidate string) ([]byte, error)
}

// StatusError reports a non-success response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// NotFound reports whether the status is 404.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == 404
}

// S3Config configures the S3 backend.
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// Config selects and configures a backend.
type Config struct {
	// Origin is the site origin: https://host, file:///dir or s3://bucket/prefix.
	Origin  string
	Timeout time.Duration
	S3      S3Config
}

// Locator maps a candidate path to the address an external consumer (such
// as the engine's extension loader) would use for it.
type Locator interface {
	Locate(candidate string) string
}

// Router sends site paths to the configured origin backend and absolute
// URLs to a plain HTTP client.
type Router struct {
	site     Fetcher
	external *HTTP
}

// New builds a router for cfg.Origin.
func New(ctx context.Context, cfg Config) (*Router, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	external := NewHTTP("", timeout)

	u, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", cfg.Origin, err)
	}

	var site Fetcher
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		site = NewHTTP(u.Scheme+"://"+u.Host+strings.TrimSuffix(u.Path, "/"), timeout)
	case "file", "":
		dir := u.Path
		if dir == "" {
			dir = cfg.Origin
		}
		if dir == "" {
			dir = "."
		}
		site = NewDir(dir)
	case "s3":
		s3f, err := NewS3(ctx, u.Host, strings.Trim(u.Path, "/"), cfg.S3)
		if err != nil {
			return nil, err
		}
		site = s3f
	default:
		return nil, fmt.Errorf("unsupported origin scheme %q (expected http, https, file or s3)", u.Scheme)
	}

	return &Router{site: site, external: external}, nil
}

// NewRouter combines an explicit site fetcher with an external HTTP client.
func NewRouter(site Fetcher, external *HTTP) *Router {
	if external == nil {
		external = NewHTTP("", DefaultTimeout)
	}
	return &Router{site: site, external: external}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, candidate string) ([]byte, error) {
	if location.IsAbsoluteURL(candidate) {
		return r.external.Fetch(ctx, candidate)
	}
	return r.site.Fetch(ctx, candidate)
}

// Locate implements Locator. Absolute URLs are returned unchanged; site
// paths are located by the site backend when it supports it.
func (r *Router) Locate(candidate string) string {
	if location.IsAbsoluteURL(candidate) {
		return candidate
	}
	if l, ok := r.site.(Locator); ok {
		return l.Locate(candidate)
	}
	return candidate
}

// OriginFromLocation returns scheme://host of a page location, or "" when
// the location carries no host.
func OriginFromLocation(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || u.Host == "" || u.Scheme == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, candidate string) ([]byte, error)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, candidate string) ([]byte, error) {
	return f(ctx, candidate)
}
