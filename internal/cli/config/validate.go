package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
)

var (
	validOutputs    = []string{"auto", "text", "markdown", "json"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Site.Location) == "" {
		return fmt.Errorf("site.location is required")
	}
	if _, err := url.Parse(c.Site.Location); err != nil {
		return fmt.Errorf("site.location %q is not a valid URL: %w", c.Site.Location, err)
	}
	if strings.Contains(c.Site.Marker, "/") {
		return fmt.Errorf("site.marker %q must be a single path segment", c.Site.Marker)
	}
	if c.Site.Origin != "" {
		u, err := url.Parse(c.Site.Origin)
		if err != nil {
			return fmt.Errorf("site.origin %q is not a valid URL: %w", c.Site.Origin, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "", "file", "http", "https", "s3":
		default:
			return fmt.Errorf("site.origin scheme %q is not supported\nHint: use https://host, file:///dir or s3://bucket/prefix", u.Scheme)
		}
	}
	if c.Engine.DuckDB.Threads < 0 {
		return fmt.Errorf("engine.threads must not be negative, got %d", c.Engine.DuckDB.Threads)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative, got %s", c.Fetch.Timeout)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.OutputFormat != "" && !slices.Contains(validOutputs, c.OutputFormat) {
		return fmt.Errorf("output %q is not one of %s", c.OutputFormat, strings.Join(validOutputs, ", "))
	}
	if c.LogFormat != "" && !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("log_format %q is not one of %s", c.LogFormat, strings.Join(validLogFormats, ", "))
	}
	return nil
}

// ValidateSiteDir checks that the local site directory exists.
func (c *Config) ValidateSiteDir() error {
	info, err := os.Stat(c.Server.SiteDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("site directory does not exist: %s\nHint: build the site first or use --site-dir to specify a different path", c.Server.SiteDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("site directory is not a directory: %s", c.Server.SiteDir)
	}
	return nil
}
