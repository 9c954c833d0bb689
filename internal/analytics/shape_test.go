package analytics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/internal/testutil"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/leapstack-labs/roadlens/pkg/engines/duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumn_Numeric(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{"BIGINT", true},
		{"double", true},
		{"DECIMAL(18,3)", true},
		{" INTEGER ", true},
		{"VARCHAR", false},
		{"DATE", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, Column{Name: "c", Type: tt.typ}.Numeric())
		})
	}
}

func TestRecordsQuery(t *testing.T) {
	tests := []struct {
		name     string
		cols     []Column
		contains []string
		excludes []string
		wantErr  error
	}{
		{
			name: "long table",
			cols: []Column{
				{"state", "VARCHAR"}, {"year", "BIGINT"},
				{"metric_name", "VARCHAR"}, {"metric_value", "DOUBLE"},
			},
			contains: []string{
				`CAST("state" AS VARCHAR) AS state`,
				`TRY_CAST("year" AS INTEGER) AS year`,
				`TRY_CAST("metric_value" AS DOUBLE) AS metric_value`,
				`FROM t_demo`,
			},
			excludes: []string{"UNPIVOT"},
		},
		{
			name: "wide table",
			cols: []Column{
				{"state", "VARCHAR"}, {"year", "BIGINT"},
				{"total_killed", "BIGINT"}, {"fatal_crashes", "DOUBLE"}, {"source_id", "VARCHAR"},
			},
			contains: []string{
				`TRY_CAST("total_killed" AS DOUBLE) AS "total_killed"`,
				`UNPIVOT (metric_value FOR metric_name IN ("total_killed", "fatal_crashes"))`,
				`FROM t_demo`,
			},
			excludes: []string{`"source_id"`, `TRY_CAST("year" AS DOUBLE)`},
		},
		{
			name: "assigned state and observation year",
			cols: []Column{
				{"state_assigned", "VARCHAR"}, {"observation_year", "INTEGER"},
				{"observation_month", "INTEGER"}, {"safety_risk_score", "DOUBLE"},
			},
			contains: []string{
				`CAST("state_assigned" AS VARCHAR) AS state`,
				`TRY_CAST("observation_year" AS INTEGER) AS year`,
				`IN ("safety_risk_score")`,
			},
			excludes: []string{`"observation_month" AS DOUBLE`},
		},
		{
			name:     "no year column",
			cols:     []Column{{"state", "VARCHAR"}, {"quality_index", "DOUBLE"}},
			contains: []string{"CAST(NULL AS INTEGER) AS year"},
		},
		{
			name:     "quoted column name",
			cols:     []Column{{"state", "VARCHAR"}, {`odd"%name`, "DOUBLE"}},
			contains: []string{`"odd""%name"`},
		},
		{
			name:    "no state column",
			cols:    []Column{{"year", "BIGINT"}, {"km", "DOUBLE"}},
			wantErr: errNoStateColumn,
		},
		{
			name:    "no metric column",
			cols:    []Column{{"state", "VARCHAR"}, {"year", "BIGINT"}, {"note", "VARCHAR"}},
			wantErr: errNoMetricColumn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := recordsQuery(tt.cols)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			sql, err := query.Render(q, "t_demo")
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, sql, s)
			}
		})
	}
}

func TestColumnsFromRows(t *testing.T) {
	cols := columnsFromRows([]engine.Row{
		{"column_name": "state", "column_type": "VARCHAR"},
		{"column_name": nil, "column_type": "BIGINT"},
		{"column_name": "total_killed", "column_type": "BIGINT"},
	})
	assert.Equal(t, []Column{{"state", "VARCHAR"}, {"total_killed", "BIGINT"}}, cols)
}

// openDuckDB returns a live engine connection for the test.
func openDuckDB(t *testing.T) engine.Conn {
	t.Helper()
	ctx := context.Background()
	db, err := duckdb.Open(ctx, duckdb.Params{}, engine.Bundle{Variant: engine.VariantCompat}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := db.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// siteAggregator serves data/processed/<id>.parquet from root.
func siteAggregator(t *testing.T, root string) *Aggregator {
	resolver := location.New(location.Config{Location: "/"})
	exec := query.NewExecutor(resolver, fetch.NewDir(root), nil, testutil.NewTestLogger(t))
	return NewAggregator(exec, testutil.NewTestLogger(t))
}

func writeTable(t *testing.T, root, sourceID, selectSQL string) {
	t.Helper()
	testutil.WriteParquet(t, filepath.Join(root, "data", "processed", sourceID+".parquet"), selectSQL)
}

func TestRunnerRecords_WideAccidentsTable(t *testing.T) {
	root := t.TempDir()
	writeTable(t, root, SourceAccidents, `SELECT * FROM (VALUES
		('Kerala', 2022, 10, 3),
		('kerala', 2022, 20, 5),
		('Kerala', 2021, 99, 9),
		('Tamil Nadu', 2022, 30, NULL)
	) AS t(state, year, total_killed, fatal_crashes)`)

	cat := catalog.New([]catalog.Entry{entry(SourceAccidents, catalog.ConfidenceHigh)})
	r := &runner{
		ctx:    context.Background(),
		conn:   openDuckDB(t),
		cat:    cat,
		exec:   siteAggregator(t, root).exec,
		logger: testutil.NewTestLogger(t),
	}

	records, err := r.records(SourceAccidents)
	require.NoError(t, err)
	// NULL fatal_crashes is dropped by the unpivot.
	assert.Len(t, records, 7)

	latest := AverageByKey(FilterLatestYear(records))
	got := map[string]float64{}
	for _, g := range latest {
		got[g.State+"/"+g.Metric] = g.Value
	}
	assert.Equal(t, map[string]float64{
		"kerala/total_killed":     15,
		"kerala/fatal_crashes":    4,
		"tamil nadu/total_killed": 30,
	}, got)

	fatalities, err := r.fatalities()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"kerala": 15, "tamil nadu": 30}, fatalities)
}
