package analytics

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
)

// Source ids the theme battery reads.
const (
	SourceConstruction = "morth_annual_report_pdf"
	SourceFinance      = "data_gov_in_nhai_project_finance_api"
	SourceProjects     = "data_gov_in_nhai_projects_api"
	SourceAccidents    = "ncrb_road_accidents_state_year"
	SourceQuality      = "quality_maintenance_indicators"
	SourceNightlights  = "viirs_nightlights_proxy"
	SourceRiskPanel    = "highway_project_risk_and_access_panel"
	SourceMacro        = "rbi_mospi_macro_indicators"
	SourceCorrelation  = "correlation_matrix"
)

// AppendixLimit caps the correlation table.
const AppendixLimit = 15

// FatalitiesMetric is the accident metric plotted against model risk. It is
// the metric_name in long tables and the column name in wide ones.
const FatalitiesMetric = "total_killed"

const (
	constructionSQL query.SQLTemplate = `SELECT TRY_CAST(year AS INTEGER) AS year,
       SUM(TRY_CAST(metric_value AS DOUBLE)) AS km
FROM {{.Alias}}
WHERE metric_name ILIKE '%km%'
GROUP BY 1
ORDER BY 1`

	budgetSQL query.SQLTemplate = `SELECT TRY_CAST(year AS INTEGER) AS year,
       SUM(TRY_CAST("allocation/target_-_total" AS DOUBLE)) AS allocation,
       SUM(TRY_CAST("expenditure/achievement_-_total" AS DOUBLE)) AS expenditure
FROM {{.Alias}}
GROUP BY 1
ORDER BY 1`

	portfolioSQL query.SQLTemplate = `SELECT state,
       COUNT(*) AS projects,
       SUM(TRY_CAST(length_in_km AS DOUBLE)) AS length_km,
       SUM(TRY_CAST("sanctioned_cost_rs._in_cr" AS DOUBLE)) AS sanctioned_cost_cr
FROM {{.Alias}}
GROUP BY state`

	statusSQL query.SQLTemplate = `SELECT COALESCE(NULLIF(TRIM(CAST(status AS VARCHAR)), ''), 'Unknown') AS status,
       COUNT(*) AS n
FROM {{.Alias}}
GROUP BY 1
ORDER BY n DESC, 1`

	riskSQL query.SQLTemplate = `SELECT state_assigned AS state,
       AVG(safety_risk_score) AS safety_risk,
       AVG(delay_risk_score) AS delay_risk,
       SUM(sanctioned_cost_cr) AS sanctioned_cost_cr
FROM {{.Alias}}
GROUP BY 1`

	macroSQL query.SQLTemplate = `SELECT TRY_CAST(year AS INTEGER) AS year,
       metric_name,
       AVG(TRY_CAST(metric_value AS DOUBLE)) AS metric_value
FROM {{.Alias}}
GROUP BY 1, 2
ORDER BY 2, 1`

	appendixSQL query.SQLTemplate = `SELECT metric_a, metric_b, source_a, source_b, correlation, overlap_records
FROM {{.Alias}}
WHERE correlation IS NOT NULL
ORDER BY abs(correlation) DESC
LIMIT 15`
)

// themeSpec describes one analysis. Optional sources contribute when
// present but their absence does not fail the theme.
type themeSpec struct {
	ID       string
	Title    string
	Sources  []string
	Optional []string
	Run      func(r *runner, t *Theme) error
}

// themes is the fixed battery in display order.
var themes = []themeSpec{
	{ID: "construction_growth", Title: "Highway construction", Sources: []string{SourceConstruction}, Run: constructionGrowth},
	{ID: "budget", Title: "Allocation vs expenditure", Sources: []string{SourceFinance}, Run: budget},
	{ID: "state_portfolio", Title: "State project portfolio", Sources: []string{SourceProjects}, Run: statePortfolio},
	{ID: "project_status", Title: "Project status", Sources: []string{SourceProjects}, Run: projectStatus},
	{ID: "safety", Title: "Road safety", Sources: []string{SourceAccidents}, Run: safety},
	{ID: "proxy_quality", Title: "Quality and activity proxies", Sources: []string{SourceQuality, SourceNightlights}, Run: proxyQuality},
	{ID: "model_risk", Title: "Modelled project risk", Sources: []string{SourceRiskPanel}, Optional: []string{SourceAccidents}, Run: modelRisk},
	{ID: "macro", Title: "Macro indicators", Sources: []string{SourceMacro}, Run: macro},
	{ID: "appendix", Title: "Strongest correlations", Sources: []string{SourceCorrelation}, Run: appendix},
}

// ThemeIDs returns the ids of the battery in order.
func ThemeIDs() []string {
	ids := make([]string, len(themes))
	for i, t := range themes {
		ids[i] = t.ID
	}
	return ids
}

func constructionGrowth(r *runner, t *Theme) error {
	rows, err := r.rows(SourceConstruction, constructionSQL)
	if err != nil {
		return err
	}
	for _, row := range rows {
		x, okX := query.Float64(row["year"])
		y, okY := query.Float64(row["km"])
		if okX && okY {
			t.Points = append(t.Points, Point{X: x, Y: y})
		}
	}
	sortPoints(t.Points)
	return nil
}

func budget(r *runner, t *Theme) error {
	rows, err := r.rows(SourceFinance, budgetSQL)
	if err != nil {
		return err
	}
	allocation := Line{Name: "Allocation"}
	expenditure := Line{Name: "Expenditure"}
	for _, row := range rows {
		x, ok := query.Float64(row["year"])
		if !ok {
			continue
		}
		if y, ok := query.Float64(row["allocation"]); ok {
			allocation.Points = append(allocation.Points, Point{X: x, Y: y})
		}
		if y, ok := query.Float64(row["expenditure"]); ok {
			expenditure.Points = append(expenditure.Points, Point{X: x, Y: y})
		}
	}
	for _, l := range []Line{allocation, expenditure} {
		if len(l.Points) > 0 {
			sortPoints(l.Points)
			t.Lines = append(t.Lines, l)
		}
	}
	return nil
}

func statePortfolio(r *runner, t *Theme) error {
	rows, err := r.rows(SourceProjects, portfolioSQL)
	if err != nil {
		return err
	}
	metrics := []string{"projects", "length_km", "sanctioned_cost_cr"}
	totals := make(map[string]map[string]float64)
	for _, row := range rows {
		key := NormalizeState(query.String(row["state"]))
		if totals[key] == nil {
			totals[key] = make(map[string]float64, len(metrics))
		}
		for _, m := range metrics {
			if v, ok := query.Float64(row[m]); ok {
				totals[key][m] += v
			}
		}
	}
	for _, key := range sortedKeys(totals) {
		t.Bars = append(t.Bars, Bar{Key: key, Label: DisplayState(key), Values: totals[key]})
	}
	return nil
}

func projectStatus(r *runner, t *Theme) error {
	rows, err := r.rows(SourceProjects, statusSQL)
	if err != nil {
		return err
	}
	index := make(map[string]int)
	for _, row := range rows {
		label := strings.TrimSpace(query.String(row["status"]))
		if label == "" {
			label = "Unknown"
		}
		n, _ := query.Float64(row["n"])
		key := strings.ToLower(label)
		if i, ok := index[key]; ok {
			t.Bars[i].Values["projects"] += n
			continue
		}
		index[key] = len(t.Bars)
		t.Bars = append(t.Bars, Bar{Key: key, Label: label, Values: map[string]float64{"projects": n}})
	}
	return nil
}

func safety(r *runner, t *Theme) error {
	records, err := r.records(SourceAccidents)
	if err != nil {
		return err
	}
	t.Bars = ToBars(AverageByKey(FilterLatestYear(records)))
	return nil
}

func proxyQuality(r *runner, t *Theme) error {
	var all []Record
	var errs []error
	for _, id := range []string{SourceQuality, SourceNightlights} {
		records, err := r.records(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, FilterLatestYear(records)...)
	}
	if len(errs) == 2 {
		return errors.Join(errs...)
	}
	t.Bars = ToBars(AverageByKey(all))
	return nil
}

func modelRisk(r *runner, t *Theme) error {
	rows, err := r.rows(SourceRiskPanel, riskSQL)
	if err != nil {
		return err
	}

	var records []Record
	cost := make(map[string]float64)
	for _, row := range rows {
		state := query.String(row["state"])
		for _, m := range []string{"safety_risk", "delay_risk"} {
			if v, ok := query.Float64(row[m]); ok {
				records = append(records, Record{State: state, Metric: m, Value: v})
			}
		}
		if v, ok := query.Float64(row["sanctioned_cost_cr"]); ok {
			cost[NormalizeState(state)] += v
		}
	}
	t.Bars = ToBars(AverageByKey(records))

	fatalities, err := r.fatalities()
	if err != nil {
		r.logger.Info("risk scatter without fatalities", "error", err)
		return nil
	}
	for _, b := range t.Bars {
		risk, okRisk := b.Values["safety_risk"]
		deaths, okDeaths := fatalities[b.Key]
		if !okRisk || !okDeaths {
			continue
		}
		t.Scatter = append(t.Scatter, ScatterPoint{Label: b.Label, X: risk, Y: deaths, Size: cost[b.Key]})
	}
	return nil
}

func macro(r *runner, t *Theme) error {
	rows, err := r.rows(SourceMacro, macroSQL)
	if err != nil {
		return err
	}
	lines := make(map[string][]Point)
	for _, row := range rows {
		name := strings.TrimSpace(query.String(row["metric_name"]))
		x, okX := query.Float64(row["year"])
		y, okY := query.Float64(row["metric_value"])
		if name == "" || !okX || !okY {
			continue
		}
		lines[name] = append(lines[name], Point{X: x, Y: y})
	}
	for _, name := range sortedKeys(lines) {
		pts := lines[name]
		sortPoints(pts)
		t.Lines = append(t.Lines, Line{Name: name, Points: pts})
	}
	return nil
}

func appendix(r *runner, t *Theme) error {
	rows, err := r.rows(SourceCorrelation, appendixSQL)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, ok := query.Float64(row["correlation"]); !ok {
			continue
		}
		tr := make(TableRow, len(row))
		for k, v := range row {
			tr[k] = v
		}
		t.Table = append(t.Table, tr)
	}
	sort.SliceStable(t.Table, func(i, j int) bool {
		a, _ := query.Float64(t.Table[i]["correlation"])
		b, _ := query.Float64(t.Table[j]["correlation"])
		return math.Abs(a) > math.Abs(b)
	})
	if len(t.Table) > AppendixLimit {
		t.Table = t.Table[:AppendixLimit]
	}
	return nil
}

// recordsFromRows reads long-format rows. Rows without a numeric value
// are dropped.
func recordsFromRows(rows []engine.Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		v, ok := query.Float64(row["metric_value"])
		if !ok {
			continue
		}
		year, _ := query.Int64(row["year"])
		out = append(out, Record{
			State:  query.String(row["state"]),
			Year:   int(year),
			Metric: strings.TrimSpace(query.String(row["metric_name"])),
			Value:  v,
		})
	}
	return out
}

func sortPoints(pts []Point) {
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
