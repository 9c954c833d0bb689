package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/cli/config"
	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/leapstack-labs/roadlens/internal/diag"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/leapstack-labs/roadlens/pkg/engines/duckdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for command execution.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Session  *Session
	Renderer *output.Renderer
}

// Session wires the resolver, fetcher, engine and diagnostics for one
// page session.
type Session struct {
	Resolver    *location.Resolver
	Fetcher     *fetch.Router
	Engine      *engine.Bootstrapper
	Diagnostics *diag.Memory
	Sink        diag.Sink
	CatalogPath string
	Logger      *slog.Logger
}

// NewSession builds a session from cfg. When reg is non-nil failed attempts
// are also counted there.
func NewSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router, err := fetch.New(ctx, cfg.FetchOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	resolver := location.New(location.Config{
		Location: cfg.Site.Location,
		Marker:   cfg.Site.Marker,
		Reserved: cfg.Site.Reserved,
	})

	memory := diag.NewMemory()
	sink := diag.Multi{diag.NewLog(logger)}
	if reg != nil {
		metrics, err := diag.NewMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		sink = append(sink, metrics)
	}
	record := diag.Multi{memory, sink}

	boot := engine.NewBootstrapper(engine.Options{
		Sources:   cfg.Engine.Modules,
		Loaders:   map[string]engine.Loader{duckdb.Name: duckdb.Loader(cfg.DuckDBParams())},
		Assets:    engineAssets(cfg, resolver, router),
		Platform:  cfg.PlatformOverride(),
		OnFailure: dashboard.OnEngineFailure(record),
		Logger:    logger,
	})

	return &Session{
		Resolver:    resolver,
		Fetcher:     router,
		Engine:      boot,
		Diagnostics: memory,
		Sink:        sink,
		CatalogPath: cfg.Catalog.Path,
		Logger:      logger,
	}, nil
}

// engineAssets turns logical asset paths into located candidates.
func engineAssets(cfg *config.Config, resolver *location.Resolver, router *fetch.Router) map[engine.Variant]engine.VariantAssets {
	locate := func(paths []string) []string {
		var out []string
		for _, p := range paths {
			for _, c := range resolver.Resolve(p) {
				out = append(out, router.Locate(c))
			}
		}
		return out
	}
	ext := cfg.Engine.Assets.External
	variant := func(v engine.Variant, paths config.AssetPaths) engine.VariantAssets {
		return engine.VariantAssets{
			ModuleURLs:     locate(paths.Module),
			WorkerURLs:     locate(paths.Worker),
			ExternalModule: config.ExternalAsset(ext.Module, v),
			ExternalWorker: config.ExternalAsset(ext.Worker, v),
		}
	}
	return map[engine.Variant]engine.VariantAssets{
		engine.VariantFull:   variant(engine.VariantFull, cfg.Engine.Assets.Full),
		engine.VariantCompat: variant(engine.VariantCompat, cfg.Engine.Assets.Compat),
	}
}

// Deps returns the dashboard dependencies for this session.
func (s *Session) Deps() dashboard.Deps {
	return dashboard.Deps{
		Resolver:    s.Resolver,
		Fetcher:     s.Fetcher,
		Engine:      s.Engine,
		CatalogPath: s.CatalogPath,
		Diagnostics: s.Diagnostics,
		Sink:        s.Sink,
		Logger:      s.Logger,
	}
}

// sink records into the session buffer and the configured sinks.
func (s *Session) sink() diag.Sink {
	return diag.Multi{s.Diagnostics, s.Sink}
}

// LoadCatalog loads the catalog with the session's resolver.
func (s *Session) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := catalog.NewLoader(s.Resolver, s.Fetcher, s.sink(), s.Logger).Load(ctx, s.CatalogPath)
	if err != nil {
		return nil, &dashboard.Error{
			Stage:   dashboard.StageCatalog,
			Message: dashboard.MessageCatalog,
			Remediation: "Check --location and --origin, or re-run the offline ingestion step so " +
				s.CatalogPath + " is published with the site.",
			Err: err,
		}
	}
	return cat, nil
}

// Bootstrap starts the engine for the session.
func (s *Session) Bootstrap(ctx context.Context) (*engine.Handle, error) {
	h, err := s.Engine.Bootstrap(ctx)
	if err != nil {
		return nil, &dashboard.Error{
			Stage:       dashboard.StageEngine,
			Message:     dashboard.MessageEngine,
			Remediation: "Check the engine.assets and engine.modules settings.",
			Err:         err,
		}
	}
	return h, nil
}

// Executor returns a query executor bound to the session.
func (s *Session) Executor() *query.Executor {
	return query.NewExecutor(s.Resolver, s.Fetcher, s.sink(), s.Logger)
}

// Close releases the engine.
func (s *Session) Close() error {
	return s.Engine.Close()
}

// NewCommandContext creates a CommandContext with a session.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutSession(cmd)

	sess, err := NewSession(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger, nil)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Session = sess

	cleanup := func() {
		_ = sess.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutSession creates a CommandContext without a session.
// Useful for commands that don't touch the site.
func NewCommandContextWithoutSession(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or defaults when the root
// command did not load one.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// reportError shows a banner for build errors and passes err through.
func reportError(r *output.Renderer, err error) error {
	var dErr *dashboard.Error
	if errors.As(err, &dErr) {
		r.Banner(dErr.Message, dErr.Remediation)
	}
	return err
}
