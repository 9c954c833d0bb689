package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultModule is the builtin module source tried after configured ones.
const DefaultModule = "duckdb"

// Stage identifies where bootstrap failed.
type Stage string

// Bootstrap stages.
const (
	StageModuleLoad  Stage = "module load"
	StageInstantiate Stage = "instantiate"
)

// Attempt is one failed bootstrap step.
type Attempt struct {
	Stage     Stage
	Source    string
	Variant   Variant
	ModuleURL string
	WorkerURL string
	Err       error
}

func (a Attempt) String() string {
	if a.Stage == StageModuleLoad {
		return fmt.Sprintf("%s: %v", a.Source, a.Err)
	}
	return fmt.Sprintf("%s [%s | %s]: %v", a.Variant, a.ModuleURL, a.WorkerURL, a.Err)
}

// BootstrapError aggregates every failed attempt of a bootstrap.
type BootstrapError struct {
	Stage    Stage
	Attempts []Attempt
}

func (e *BootstrapError) Error() string {
	var b strings.Builder
	switch e.Stage {
	case StageModuleLoad:
		b.WriteString("engine module load failed")
	default:
		b.WriteString("all engine bootstrap candidates failed")
	}
	if len(e.Attempts) == 0 {
		return b.String()
	}
	b.WriteString(": ")
	for i, a := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(a.String())
	}
	return b.String()
}

// PlatformOverride forces capability flags regardless of detection.
type PlatformOverride struct {
	SIMD       *bool
	Exceptions *bool
}

// Apply returns p with the overrides applied.
func (o PlatformOverride) Apply(p Platform) Platform {
	if o.SIMD != nil {
		p.SIMD = *o.SIMD
	}
	if o.Exceptions != nil {
		p.Exceptions = *o.Exceptions
	}
	return p
}

// Options configures a Bootstrapper.
type Options struct {
	// Sources are module names tried in order before Fallback.
	Sources []string

	// Fallback is the builtin module tried last. Defaults to DefaultModule.
	Fallback string

	// Loaders override registry entries by name for this bootstrapper.
	Loaders map[string]Loader

	Assets   map[Variant]VariantAssets
	Platform PlatformOverride

	// OnFailure observes every failed attempt in order.
	OnFailure func(Attempt)

	Logger *slog.Logger
}

// Handle is the live engine for a session.
type Handle struct {
	SessionID string
	Module    string
	Platform  Platform
	Bundle    Bundle
	DB        Database
	Conn      Conn

	closeOnce sync.Once
	closeErr  error
}

// Close releases the connection and the database. It is safe to call more
// than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		var errs []string
		if h.Conn != nil {
			if err := h.Conn.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if h.DB != nil {
			if err := h.DB.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			h.closeErr = fmt.Errorf("failed to close engine: %s", strings.Join(errs, "; "))
		}
	})
	return h.closeErr
}

// Bootstrapper creates the session engine at most once.
type Bootstrapper struct {
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.Mutex
	handle *Handle
}

// NewBootstrapper creates a bootstrapper.
func NewBootstrapper(opts Options) *Bootstrapper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultModule
	}
	return &Bootstrapper{opts: opts, logger: logger}
}

// Bootstrap returns the session handle, creating it on first use.
// Concurrent callers share one attempt. Failures are not cached.
//
// The shared attempt keeps the first caller's values but not its
// cancellation; a caller whose ctx ends stops waiting and the attempt
// completes for the others.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*Handle, error) {
	if h := b.cached(); h != nil {
		return h, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := b.group.DoChan("bootstrap", func() (any, error) {
		if h := b.cached(); h != nil {
			return h, nil
		}
		h, err := b.bootstrap(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.handle = h
		b.mu.Unlock()
		return h, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

// Handle returns the cached handle, or nil before a successful bootstrap.
func (b *Bootstrapper) Handle() *Handle {
	return b.cached()
}

// Close closes the cached handle, if any, and forgets it.
func (b *Bootstrapper) Close() error {
	b.mu.Lock()
	h := b.handle
	b.handle = nil
	b.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Close()
}

func (b *Bootstrapper) cached() *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle
}

func (b *Bootstrapper) bootstrap(ctx context.Context) (*Handle, error) {
	mod, source, err := b.loadModule()
	if err != nil {
		return nil, err
	}

	platform, err := mod.DetectPlatform(ctx)
	if err != nil {
		b.logger.Warn("platform detection failed, assuming baseline", "error", err)
		platform = Platform{}
	}
	platform = b.opts.Platform.Apply(platform)

	variant := SelectVariant(platform)
	b.logger.Debug("engine variant selected", "module", source, "variant", variant, "simd", platform.SIMD, "exceptions", platform.Exceptions)

	logger := mod.Logger(b.logger)

	h, attempts := b.tryVariant(ctx, mod, variant, logger)
	if h == nil && variant != VariantCompat {
		b.logger.Warn("engine variant failed, retrying with compat", "variant", variant)
		var more []Attempt
		h, more = b.tryVariant(ctx, mod, VariantCompat, logger)
		attempts = append(attempts, more...)
	}
	if h == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &BootstrapError{Stage: StageInstantiate, Attempts: attempts}
	}

	h.Module = source
	h.Platform = platform
	b.logger.Info("engine ready",
		"module", source,
		"variant", h.Bundle.Variant,
		"session", h.SessionID,
	)
	return h, nil
}

// sources returns configured sources followed by the fallback, deduplicated.
func (b *Bootstrapper) sources() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, b.opts.Sources...), b.opts.Fallback) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (b *Bootstrapper) loadModule() (*Module, string, error) {
	var attempts []Attempt
	for _, source := range b.sources() {
		mod, err := b.loadSource(source)
		if err != nil {
			a := Attempt{Stage: StageModuleLoad, Source: source, Err: err}
			b.fail(a)
			attempts = append(attempts, a)
			continue
		}
		return mod, source, nil
	}
	return nil, "", &BootstrapError{Stage: StageModuleLoad, Attempts: attempts}
}

func (b *Bootstrapper) loadSource(source string) (*Module, error) {
	loader, ok := b.opts.Loaders[source]
	if !ok {
		loader, ok = Get(source)
	}
	if !ok {
		return nil, &UnknownModuleError{Name: source, Available: ListModules()}
	}
	mod, err := loader()
	if err != nil {
		return nil, fmt.Errorf("failed to load module: %w", err)
	}
	if missing := mod.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("module is missing capabilities: %s", strings.Join(missing, ", "))
	}
	return mod, nil
}

func (b *Bootstrapper) tryVariant(ctx context.Context, mod *Module, v Variant, logger *slog.Logger) (*Handle, []Attempt) {
	var attempts []Attempt
	for _, bundle := range b.opts.Assets[v].Pairs(v) {
		if ctx.Err() != nil {
			break
		}
		h, err := instantiate(ctx, mod, bundle, logger)
		if err != nil {
			a := Attempt{
				Stage:     StageInstantiate,
				Variant:   v,
				ModuleURL: bundle.ModuleURL,
				WorkerURL: bundle.WorkerURL,
				Err:       err,
			}
			b.fail(a)
			attempts = append(attempts, a)
			continue
		}
		return h, attempts
	}
	return nil, attempts
}

func instantiate(ctx context.Context, mod *Module, bundle Bundle, logger *slog.Logger) (*Handle, error) {
	db, err := mod.NewDatabase(ctx, bundle, logger)
	if err != nil {
		return nil, err
	}
	conn, err := db.Connect(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	return &Handle{
		SessionID: uuid.NewString(),
		Bundle:    bundle,
		DB:        db,
		Conn:      conn,
	}, nil
}

func (b *Bootstrapper) fail(a Attempt) {
	b.logger.Debug("engine bootstrap attempt failed", "stage", string(a.Stage), "attempt", a.String())
	if b.opts.OnFailure != nil {
		b.opts.OnFailure(a)
	}
}
