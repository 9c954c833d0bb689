// Package duckdb provides the DuckDB engine module.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/marcboeker/go-duckdb"
)

// Name is the registry name of the module.
const Name = "duckdb"

// NewModule returns a module configured with p.
func NewModule(p Params) *engine.Module {
	return &engine.Module{
		Name:           Name,
		DetectPlatform: DetectPlatform,
		Logger: func(base *slog.Logger) *slog.Logger {
			if base == nil {
				base = slog.New(slog.DiscardHandler)
			}
			return base.With("engine", Name)
		},
		NewDatabase: func(ctx context.Context, bundle engine.Bundle, logger *slog.Logger) (engine.Database, error) {
			return Open(ctx, p, bundle, logger)
		},
	}
}

// Loader returns a registry loader for p.
func Loader(p Params) engine.Loader {
	return func() (*engine.Module, error) {
		return NewModule(p), nil
	}
}

// DetectPlatform reports SIMD support from the host CPU. Native builds always
// have exception support.
func DetectPlatform(context.Context) (engine.Platform, error) {
	simd := cpuid.CPU.Has(cpuid.AVX2) || cpuid.CPU.Has(cpuid.ASIMD)
	return engine.Platform{SIMD: simd, Exceptions: true}, nil
}

// Database is a DuckDB instance opened for one bundle.
type Database struct {
	connector *duckdb.Connector
	db        *sql.DB
	params    Params
	bundle    engine.Bundle
	logger    *slog.Logger

	scratchDir   string
	ownedScratch bool

	closeOnce sync.Once
	closeErr  error
}

// Open creates the database for bundle. Variant settings are applied when
// the connection is opened.
func Open(ctx context.Context, p Params, bundle engine.Bundle, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	connector, err := duckdb.NewConnector(p.Database, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	scratch := p.ScratchDir
	owned := false
	if scratch == "" {
		scratch, err = os.MkdirTemp("", "roadlens-"+uuid.NewString()[:8]+"-")
		if err != nil {
			_ = db.Close()
			_ = connector.Close()
			return nil, fmt.Errorf("failed to create scratch dir: %w", err)
		}
		owned = true
	} else if err := os.MkdirAll(scratch, 0o750); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	logger.Debug("duckdb opened", "variant", bundle.Variant, "database", p.Database, "scratch", scratch)

	return &Database{
		connector:    connector,
		db:           db,
		params:       p,
		bundle:       bundle,
		logger:       logger,
		scratchDir:   scratch,
		ownedScratch: owned,
	}, nil
}

// Connect opens the session connection and applies the variant settings.
func (d *Database) Connect(ctx context.Context) (engine.Conn, error) {
	if d.db == nil {
		return nil, engine.ErrNotConnected
	}
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	for _, stmt := range SessionStatements(d.params, d.bundle) {
		if _, err := c.ExecContext(ctx, stmt); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	return NewConn(c, d.scratchDir, d.logger), nil
}

// Close closes the database and removes the scratch directory it created.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		if d.db != nil {
			d.logger.Debug("closing database connection")
			if err := d.db.Close(); err != nil {
				d.closeErr = err
			}
		}
		if d.connector != nil {
			if err := d.connector.Close(); err != nil && d.closeErr == nil {
				d.closeErr = err
			}
		}
		if d.ownedScratch {
			_ = os.RemoveAll(d.scratchDir)
		}
	})
	return d.closeErr
}

// SessionStatements returns the statements applied to a new connection for
// the bundle's variant.
func SessionStatements(p Params, bundle engine.Bundle) []string {
	var stmts []string

	switch bundle.Variant {
	case engine.VariantFull:
		threads := p.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		stmts = append(stmts, fmt.Sprintf("SET threads = %d", threads))
		if len(p.Extensions) > 0 {
			if dir := localDir(bundle.WorkerURL); dir != "" {
				stmts = append(stmts, fmt.Sprintf("SET extension_directory = %s", quoteLiteral(dir)))
			}
			if bundle.ModuleURL != "" {
				stmts = append(stmts, fmt.Sprintf("SET custom_extension_repository = %s", quoteLiteral(bundle.ModuleURL)))
			}
			for _, ext := range p.Extensions {
				ext = strings.TrimSpace(ext)
				if !validIdent(ext) {
					continue
				}
				stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
			}
		}
	default:
		stmts = append(stmts,
			"SET threads = 1",
			"SET autoinstall_known_extensions = false",
			"SET autoload_known_extensions = false",
		)
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		if validIdent(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET %s = %s", k, quoteLiteral(p.Settings[k])))
	}
	return stmts
}

// localDir returns u when it names a filesystem location.
func localDir(u string) string {
	if u == "" || strings.Contains(u, "://") {
		return ""
	}
	return u
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func init() {
	engine.Register(Name, Loader(Params{}))
}
