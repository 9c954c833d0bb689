// Package config provides configuration management for the roadlens CLI.
//
// Configuration is layered: defaults, then roadlens.yaml, then ROADLENS_
// environment variables, then explicitly set command-line flags.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/leapstack-labs/roadlens/pkg/engines/duckdb"
)

// Defaults.
const (
	DefaultLocation  = "/apps/web/"
	DefaultOutput    = "auto"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultPort      = 8080
	DefaultSiteDir   = "."

	// VariantPlaceholder is replaced by the variant name in external asset URLs.
	VariantPlaceholder = "{variant}"
)

// SiteConfig describes the published site and the page being served.
type SiteConfig struct {
	Location string   `koanf:"location"`
	Marker   string   `koanf:"marker"`
	Reserved []string `koanf:"reserved"`

	// Origin overrides where site paths are fetched from:
	// https://host, file:///dir or s3://bucket/prefix.
	Origin string `koanf:"origin"`
}

// CatalogConfig locates the dataset catalog.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// PlatformConfig forces engine capability flags.
type PlatformConfig struct {
	SIMD       *bool `koanf:"simd"`
	Exceptions *bool `koanf:"exceptions"`
}

// AssetPaths are local logical candidates for one engine variant.
type AssetPaths struct {
	Module []string `koanf:"module"`
	Worker []string `koanf:"worker"`
}

// ExternalAssets are the last-resort URLs. VariantPlaceholder is expanded
// per variant.
type ExternalAssets struct {
	Module string `koanf:"module"`
	Worker string `koanf:"worker"`
}

// AssetsConfig holds engine asset candidates.
type AssetsConfig struct {
	Full     AssetPaths     `koanf:"full"`
	Compat   AssetPaths     `koanf:"compat"`
	External ExternalAssets `koanf:"external"`
}

// EngineConfig configures the analytical engine.
type EngineConfig struct {
	// Modules are tried in order before the builtin duckdb module.
	Modules  []string       `koanf:"modules"`
	Platform PlatformConfig `koanf:"platform"`
	Assets   AssetsConfig   `koanf:"assets"`

	// DuckDB holds the remaining keys of the engine section, decoded by
	// the builtin module.
	DuckDB duckdb.Params `koanf:"-"`
}

// engineKeys are the engine section keys that are not duckdb params.
var engineKeys = []string{"modules", "platform", "assets"}

// decodeDuckDBParams decodes the duckdb share of the raw engine section.
// Unknown keys are an error.
func decodeDuckDBParams(section map[string]any) (duckdb.Params, error) {
	raw := make(map[string]any, len(section))
	for key, v := range section {
		if !slices.Contains(engineKeys, key) {
			raw[key] = v
		}
	}
	p, err := duckdb.ParseParams(raw)
	if err != nil {
		return duckdb.Params{}, fmt.Errorf("engine: %w", err)
	}
	return *p, nil
}

// FetchConfig bounds network fetches.
type FetchConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// S3Config configures the s3:// origin.
type S3Config struct {
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	PathStyle bool   `koanf:"path_style"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port    int    `koanf:"port"`
	Watch   bool   `koanf:"watch"`
	SiteDir string `koanf:"site_dir"`
}

// Config holds all CLI configuration options.
type Config struct {
	Site         SiteConfig    `koanf:"site"`
	Catalog      CatalogConfig `koanf:"catalog"`
	Engine       EngineConfig  `koanf:"engine"`
	Fetch        FetchConfig   `koanf:"fetch"`
	S3           S3Config      `koanf:"s3"`
	Server       ServerConfig  `koanf:"server"`
	LogLevel     string        `koanf:"log_level"`
	LogFormat    string        `koanf:"log_format"`
	OutputFormat string        `koanf:"output"`
	Verbose      bool          `koanf:"verbose"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Location: DefaultLocation,
			Marker:   location.DefaultMarker,
			Reserved: append([]string(nil), location.DefaultReserved...),
		},
		Catalog: CatalogConfig{Path: catalog.DefaultPath},
		Engine: EngineConfig{
			Assets: AssetsConfig{
				Full: AssetPaths{
					Module: []string{"duckdb/extensions"},
					Worker: []string{"duckdb/extensions"},
				},
				External: ExternalAssets{
					Module: "https://extensions.duckdb.org",
				},
			},
		},
		Fetch:        FetchConfig{Timeout: fetch.DefaultTimeout},
		Server:       ServerConfig{Port: DefaultPort, SiteDir: DefaultSiteDir},
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		OutputFormat: DefaultOutput,
	}
}

// defaultMap flattens Default for the confmap provider.
func defaultMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"site.location":                 d.Site.Location,
		"site.marker":                   d.Site.Marker,
		"site.reserved":                 d.Site.Reserved,
		"catalog.path":                  d.Catalog.Path,
		"engine.assets.full.module":     d.Engine.Assets.Full.Module,
		"engine.assets.full.worker":     d.Engine.Assets.Full.Worker,
		"engine.assets.external.module": d.Engine.Assets.External.Module,
		"fetch.timeout":                 d.Fetch.Timeout.String(),
		"server.port":                   d.Server.Port,
		"server.site_dir":               d.Server.SiteDir,
		"log_level":                     d.LogLevel,
		"log_format":                    d.LogFormat,
		"output":                        d.OutputFormat,
		"verbose":                       false,
	}
}

// DuckDBParams returns the builtin module parameters.
func (c *Config) DuckDBParams() duckdb.Params {
	return c.Engine.DuckDB
}

// PlatformOverride returns the configured capability overrides.
func (c *Config) PlatformOverride() engine.PlatformOverride {
	return engine.PlatformOverride{
		SIMD:       c.Engine.Platform.SIMD,
		Exceptions: c.Engine.Platform.Exceptions,
	}
}

// ExternalAsset expands the placeholder in an external URL for v.
func ExternalAsset(tmpl string, v engine.Variant) string {
	return strings.ReplaceAll(tmpl, VariantPlaceholder, string(v))
}

// FetchOptions returns the fetch backend configuration. Without an explicit
// origin the page location's host is used, and a location without a host
// serves from the local site directory.
func (c *Config) FetchOptions() fetch.Config {
	origin := c.Site.Origin
	if origin == "" {
		origin = fetch.OriginFromLocation(c.Site.Location)
	}
	if origin == "" {
		origin = c.Server.SiteDir
	}
	return fetch.Config{
		Origin:  origin,
		Timeout: c.Fetch.Timeout,
		S3: fetch.S3Config{
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			PathStyle: c.S3.PathStyle,
		},
	}
}
