// Package engine defines the embedded analytical engine contract and the
// bootstrapper that selects a module, a binary variant and asset candidates
// to produce one live connection per session.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrNotConnected is returned by operations on a closed or unopened engine.
var ErrNotConnected = errors.New("database connection not established")

// Platform holds runtime capability flags.
type Platform struct {
	SIMD       bool `json:"simd"`
	Exceptions bool `json:"exceptions"`
}

// Variant names an engine binary build.
type Variant string

// Engine variants.
const (
	// VariantFull needs SIMD and native exceptions.
	VariantFull Variant = "full"
	// VariantCompat runs everywhere.
	VariantCompat Variant = "compat"
)

// SelectVariant picks the full variant only when both flags are present.
func SelectVariant(p Platform) Variant {
	if p.SIMD && p.Exceptions {
		return VariantFull
	}
	return VariantCompat
}

// Bundle is one concrete asset pair handed to a module's database constructor.
type Bundle struct {
	Variant   Variant `json:"variant"`
	ModuleURL string  `json:"module_url"`
	WorkerURL string  `json:"worker_url"`
}

// Database is a live engine instance.
type Database interface {
	Connect(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is the single connection used for the session.
type Conn interface {
	// RegisterFileBuffer makes data queryable under alias.
	RegisterFileBuffer(ctx context.Context, alias string, data []byte) error
	Query(ctx context.Context, sql string) (Result, error)
	Close() error
}

// Module is a loaded engine module. All three capabilities are required.
type Module struct {
	Name           string
	DetectPlatform func(ctx context.Context) (Platform, error)
	Logger         func(base *slog.Logger) *slog.Logger
	NewDatabase    func(ctx context.Context, bundle Bundle, logger *slog.Logger) (Database, error)
}

// Missing lists the capabilities the module does not provide.
func (m *Module) Missing() []string {
	if m == nil {
		return []string{"DetectPlatform", "Logger", "NewDatabase"}
	}
	var missing []string
	if m.DetectPlatform == nil {
		missing = append(missing, "DetectPlatform")
	}
	if m.Logger == nil {
		missing = append(missing, "Logger")
	}
	if m.NewDatabase == nil {
		missing = append(missing, "NewDatabase")
	}
	return missing
}

// VariantAssets holds the candidate lists for one variant. Local candidates
// come first; the external URLs are always tried last.
type VariantAssets struct {
	ModuleURLs     []string `json:"module_urls"`
	WorkerURLs     []string `json:"worker_urls"`
	ExternalModule string   `json:"external_module,omitempty"`
	ExternalWorker string   `json:"external_worker,omitempty"`
}

// Pairs returns the bundles to try, pairing candidates by index. An index
// without a local candidate uses the external URL.
func (a VariantAssets) Pairs(v Variant) []Bundle {
	modules := withExternal(a.ModuleURLs, a.ExternalModule)
	workers := withExternal(a.WorkerURLs, a.ExternalWorker)

	n := len(modules)
	if len(workers) > n {
		n = len(workers)
	}
	if n == 0 {
		return []Bundle{{Variant: v}}
	}

	out := make([]Bundle, 0, n)
	for i := 0; i < n; i++ {
		b := Bundle{Variant: v, ModuleURL: a.ExternalModule, WorkerURL: a.ExternalWorker}
		if i < len(modules) {
			b.ModuleURL = modules[i]
		}
		if i < len(workers) {
			b.WorkerURL = workers[i]
		}
		out = append(out, b)
	}
	return out
}

func withExternal(local []string, external string) []string {
	out := make([]string, 0, len(local)+1)
	seen := make(map[string]bool, len(local)+1)
	for _, c := range local {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if external != "" && !seen[external] {
		out = append(out, external)
	}
	return out
}
