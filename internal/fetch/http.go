package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTP fetches over HTTP with caching disabled.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP creates an HTTP fetcher. Paths are joined onto base; absolute
// URLs are requested as-is.
func NewHTTP(base string, timeout time.Duration) *HTTP {
	return &HTTP{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// WithClient replaces the underlying client.
func (h *HTTP) WithClient(c *http.Client) *HTTP {
	h.client = c
	return h
}

// Locate implements Locator.
func (h *HTTP) Locate(candidate string) string {
	if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") || h.base == "" {
		return candidate
	}
	return h.base + "/" + strings.TrimPrefix(candidate, "/")
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, candidate string) ([]byte, error) {
	target := h.Locate(candidate)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nil, fmt.Errorf("no origin configured for %s", candidate)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	return body, nil
}
