// Package dashboard composes the full pipeline: resolve, load the catalog,
// start the engine, count rows and aggregate themes.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/roadlens/internal/analytics"
	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/diag"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
)

// Deps are the collaborators of one build.
type Deps struct {
	Resolver *location.Resolver
	Fetcher  fetch.Fetcher
	Engine   *engine.Bootstrapper

	// CatalogPath defaults to catalog.DefaultPath.
	CatalogPath string

	// Diagnostics collects every failed attempt for the bundle. A fresh
	// buffer is used when nil.
	Diagnostics *diag.Memory

	// Sink receives the same events as Diagnostics.
	Sink diag.Sink

	Logger *slog.Logger
}

// EngineInfo describes the engine that served the build.
type EngineInfo struct {
	SessionID  string         `json:"session_id"`
	Module     string         `json:"module"`
	Variant    engine.Variant `json:"variant"`
	SIMD       bool           `json:"simd"`
	Exceptions bool           `json:"exceptions"`
}

// CatalogSummary describes the loaded catalog.
type CatalogSummary struct {
	Source      string `json:"source"`
	GeneratedAt string `json:"generated_at,omitempty"`
	Datasets    int    `json:"datasets"`
}

// Card is one dataset tile.
type Card struct {
	SourceID       string             `json:"source_id"`
	Title          string             `json:"title,omitempty"`
	Publisher      string             `json:"publisher,omitempty"`
	URL            string             `json:"url,omitempty"`
	MetricCategory string             `json:"metric_category,omitempty"`
	Status         string             `json:"status,omitempty"`
	SkipReason     string             `json:"skip_reason,omitempty"`
	Disabled       bool               `json:"disabled"`
	RowCount       int64              `json:"row_count"`
	Confidence     catalog.Confidence `json:"confidence"`
	Reasons        []string           `json:"confidence_reasons,omitempty"`
	Citation       string             `json:"citation,omitempty"`
}

// Bundle is everything the presentation layer renders.
type Bundle struct {
	BuiltAt     time.Time         `json:"built_at"`
	Catalog     CatalogSummary    `json:"catalog"`
	Engine      EngineInfo        `json:"engine"`
	Datasets    []Card            `json:"datasets"`
	Themes      []analytics.Theme `json:"themes"`
	Diagnostics []diag.Event      `json:"diagnostics"`
}

// OnEngineFailure adapts a sink to engine.Options.OnFailure.
func OnEngineFailure(sink diag.Sink) func(engine.Attempt) {
	sink = diag.OrNop(sink)
	return func(a engine.Attempt) {
		resource := string(a.Variant)
		candidate := a.ModuleURL
		if a.Stage == engine.StageModuleLoad {
			resource = "module"
			candidate = a.Source
		}
		sink.Record(diag.NewEvent(diag.KindBootstrap, resource, candidate, a.Err))
	}
}

// Build runs the pipeline once. Catalog and engine failures are returned
// as *Error; dataset failures only degrade their cards and themes.
func Build(ctx context.Context, deps Deps) (*Bundle, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Resolver == nil || deps.Fetcher == nil || deps.Engine == nil {
		return nil, fmt.Errorf("dashboard build requires a resolver, fetcher and engine")
	}
	memory := deps.Diagnostics
	if memory == nil {
		memory = diag.NewMemory()
	}
	sink := diag.Multi{memory, diag.OrNop(deps.Sink)}

	loader := catalog.NewLoader(deps.Resolver, deps.Fetcher, sink, logger)
	cat, err := loader.Load(ctx, deps.CatalogPath)
	if err != nil {
		return nil, catalogError(err)
	}

	handle, err := deps.Engine.Bootstrap(ctx)
	if err != nil {
		return nil, engineError(err)
	}
	logger.Info("engine ready",
		"session", handle.SessionID,
		"module", handle.Module,
		"variant", handle.Bundle.Variant)

	exec := query.NewExecutor(deps.Resolver, deps.Fetcher, sink, logger)
	cards := make([]Card, 0, cat.Len())
	for _, e := range cat.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cards = append(cards, newCard(ctx, exec, handle.Conn, e))
	}

	themes := analytics.NewAggregator(exec, logger).Aggregate(ctx, handle.Conn, cat)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Bundle{
		BuiltAt: time.Now().UTC(),
		Catalog: CatalogSummary{
			Source:      cat.Source,
			GeneratedAt: cat.GeneratedAt,
			Datasets:    cat.Len(),
		},
		Engine: EngineInfo{
			SessionID:  handle.SessionID,
			Module:     handle.Module,
			Variant:    handle.Bundle.Variant,
			SIMD:       handle.Platform.SIMD,
			Exceptions: handle.Platform.Exceptions,
		},
		Datasets:    cards,
		Themes:      themes.Themes,
		Diagnostics: memory.Snapshot(),
	}, nil
}

func newCard(ctx context.Context, exec *query.Executor, conn engine.Conn, e *catalog.Entry) Card {
	c := Card{
		SourceID:       e.SourceID,
		Title:          e.Source.Title,
		Publisher:      e.Source.Publisher,
		URL:            e.Source.URL,
		MetricCategory: e.MetricCategory,
		Status:         e.Status,
		SkipReason:     e.SkipReason,
		Disabled:       e.Disabled(),
		Confidence:     e.Confidence.Normalize(),
		Reasons:        e.ConfidenceReasons,
		Citation:       citation(e.Citations),
	}
	if c.Disabled {
		c.RowCount = e.FallbackRowCount()
		return c
	}
	c.RowCount = exec.CountRowsOrFallback(ctx, conn, e)
	return c
}

func citation(c catalog.Citations) string {
	switch {
	case c.PermanentIdentifier != "" && c.Anchor != "":
		return c.PermanentIdentifier + " (" + c.Anchor + ")"
	case c.PermanentIdentifier != "":
		return c.PermanentIdentifier
	default:
		return c.Anchor
	}
}
