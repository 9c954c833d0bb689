package analytics

import (
	"errors"
	"strings"

	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
)

// describeSQL lists the columns of a registered table.
const describeSQL query.SQLTemplate = `SELECT column_name, column_type FROM (DESCRIBE SELECT * FROM {{.Alias}})`

// Column is one column of a registered table.
type Column struct {
	Name string
	Type string
}

// Numeric reports whether the column holds numbers.
func (c Column) Numeric() bool {
	t := strings.ToUpper(strings.TrimSpace(c.Type))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT",
		"FLOAT", "REAL", "DOUBLE", "DECIMAL", "NUMERIC":
		return true
	}
	return false
}

// columnsFromRows reads DESCRIBE output.
func columnsFromRows(rows []engine.Row) []Column {
	cols := make([]Column, 0, len(rows))
	for _, row := range rows {
		name := query.String(row["column_name"])
		if name == "" {
			continue
		}
		cols = append(cols, Column{Name: name, Type: query.String(row["column_type"])})
	}
	return cols
}

// Columns that identify a record rather than measure it.
var (
	stateColumns = []string{"state", "state_name", "state_assigned"}
	yearColumns  = []string{"year", "observation_year"}
	// keyColumns are numeric but never metrics.
	keyColumns = map[string]bool{"year": true, "observation_year": true, "observation_month": true, "month": true}
)

var (
	errNoStateColumn  = errors.New("table has no state column")
	errNoMetricColumn = errors.New("table has neither metric_name/metric_value nor numeric metric columns")
)

// recordsQuery returns the query that reads a table as (state, year,
// metric_name, metric_value) rows. Long tables already carry
// metric_name and metric_value; wide tables are unpivoted over their
// numeric columns, the column name becoming the metric.
func recordsQuery(cols []Column) (query.Query, error) {
	byName := make(map[string]Column, len(cols))
	for _, c := range cols {
		byName[strings.ToLower(c.Name)] = c
	}

	state, ok := firstColumn(byName, stateColumns)
	if !ok {
		return nil, errNoStateColumn
	}
	yearExpr := "CAST(NULL AS INTEGER)"
	if year, ok := firstColumn(byName, yearColumns); ok {
		yearExpr = "TRY_CAST(" + quoteIdent(year.Name) + " AS INTEGER)"
	}
	stateExpr := "CAST(" + quoteIdent(state.Name) + " AS VARCHAR)"

	_, hasName := byName["metric_name"]
	value, hasValue := byName["metric_value"]
	if hasName && hasValue {
		v := quoteIdent(value.Name)
		return fromAlias(
			"SELECT "+stateExpr+" AS state,\n"+
				"       "+yearExpr+" AS year,\n"+
				"       CAST(metric_name AS VARCHAR) AS metric_name,\n"+
				"       TRY_CAST("+v+" AS DOUBLE) AS metric_value\n"+
				"FROM ",
			"\nWHERE "+v+" IS NOT NULL",
		), nil
	}

	var metrics []string
	for _, c := range cols {
		if !c.Numeric() || keyColumns[strings.ToLower(c.Name)] || strings.EqualFold(c.Name, state.Name) {
			continue
		}
		metrics = append(metrics, quoteIdent(c.Name))
	}
	if len(metrics) == 0 {
		return nil, errNoMetricColumn
	}

	casts := make([]string, len(metrics))
	for i, m := range metrics {
		casts[i] = "TRY_CAST(" + m + " AS DOUBLE) AS " + m
	}
	return fromAlias(
		"SELECT state, year, metric_name, metric_value\n"+
			"FROM (\n"+
			"    SELECT "+stateExpr+" AS state, "+yearExpr+" AS year, "+strings.Join(casts, ", ")+"\n"+
			"    FROM ",
		"\n) AS wide\n"+
			"UNPIVOT (metric_value FOR metric_name IN ("+strings.Join(metrics, ", ")+"))",
	), nil
}

// fromAlias builds a query whose table reference sits between before and
// after.
func fromAlias(before, after string) query.Template {
	return func(alias string) string { return before + alias + after }
}

func firstColumn(byName map[string]Column, names []string) (Column, bool) {
	for _, n := range names {
		if c, ok := byName[n]; ok {
			return c, true
		}
	}
	return Column{}, false
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
