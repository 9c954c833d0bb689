package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
)

// Aggregator runs the theme battery against one engine connection.
type Aggregator struct {
	exec   *query.Executor
	logger *slog.Logger
}

// NewAggregator creates an aggregator that registers datasets through exec.
func NewAggregator(exec *query.Executor, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{exec: exec, logger: logger}
}

// Aggregate computes every theme in order. A theme that fails is returned
// with empty series and its Error set; the others are unaffected.
func (a *Aggregator) Aggregate(ctx context.Context, conn engine.Conn, cat *catalog.Catalog) *Dashboard {
	d := &Dashboard{Themes: make([]Theme, 0, len(themes))}
	for _, spec := range themes {
		d.Themes = append(d.Themes, a.runTheme(ctx, conn, cat, spec))
	}
	return d
}

func (a *Aggregator) runTheme(ctx context.Context, conn engine.Conn, cat *catalog.Catalog, spec themeSpec) Theme {
	logger := a.logger.With("theme", spec.ID)
	r := &runner{ctx: ctx, conn: conn, cat: cat, exec: a.exec, logger: logger}

	contributing := r.enabled(append(append([]string{}, spec.Sources...), spec.Optional...))
	floor, reasons := ConfidenceFloor(contributing)

	base := Theme{
		ID:                spec.ID,
		Title:             spec.Title,
		Confidence:        floor,
		ConfidenceReasons: reasons,
	}
	for _, e := range contributing {
		base.Sources = append(base.Sources, e.SourceID)
	}

	if len(r.enabled(spec.Sources)) == 0 {
		base.Error = "no enabled datasets"
		logger.Debug("theme skipped", "reason", base.Error)
		return base
	}
	if err := ctx.Err(); err != nil {
		base.Error = err.Error()
		return base
	}

	t := base
	if err := spec.Run(r, &t); err != nil {
		logger.Warn("theme failed", "error", err)
		base.Error = err.Error()
		return base
	}
	logger.Debug("theme computed", "empty", t.Empty())
	return t
}

// runner gives theme functions access to the session.
type runner struct {
	ctx    context.Context
	conn   engine.Conn
	cat    *catalog.Catalog
	exec   *query.Executor
	logger *slog.Logger
}

// enabled returns the catalog entries for ids that exist and are not
// disabled.
func (r *runner) enabled(ids []string) []*catalog.Entry {
	var out []*catalog.Entry
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := r.cat.Get(id); ok && !e.Disabled() {
			out = append(out, e)
		}
	}
	return out
}

func (r *runner) rows(sourceID string, q query.Query) ([]engine.Row, error) {
	e, ok := r.cat.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("%s not in catalog", sourceID)
	}
	if e.Disabled() {
		return nil, fmt.Errorf("%s is disabled", sourceID)
	}
	return r.exec.RegisterAndQuery(r.ctx, r.conn, e.TablePath(), q)
}

// records reads a state-level table as records, whichever of the long or
// wide shapes ingestion published it in.
func (r *runner) records(sourceID string) ([]Record, error) {
	described, err := r.rows(sourceID, describeSQL)
	if err != nil {
		return nil, err
	}
	q, err := recordsQuery(columnsFromRows(described))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sourceID, err)
	}
	rows, err := r.rows(sourceID, q)
	if err != nil {
		return nil, err
	}
	return recordsFromRows(rows), nil
}

// fatalities returns the latest-year average of FatalitiesMetric per state
// key.
func (r *runner) fatalities() (map[string]float64, error) {
	records, err := r.records(SourceAccidents)
	if err != nil {
		return nil, err
	}
	var killed []Record
	for _, rec := range records {
		if rec.Metric == FatalitiesMetric {
			killed = append(killed, rec)
		}
	}
	out := make(map[string]float64)
	for _, g := range AverageByKey(FilterLatestYear(killed)) {
		out[g.State] = g.Value
	}
	return out, nil
}
