package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/cli/testutil"
	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCommand_DirectSQL(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "query", testutil.AccidentsID,
		"SELECT state, SUM(metric_value) AS killed FROM {{.Alias}} GROUP BY state ORDER BY state",
		"--format", "json")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "Goa", rows[0]["state"])
	assert.InDelta(t, 490.0, rows[0]["killed"], 0.001)
	assert.Equal(t, "Tamil Nadu", rows[2]["state"])
}

func TestQueryCommand_KeepsSelectColumnOrder(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "query", testutil.AccidentsID,
		"SELECT year, state FROM {{.Alias}} ORDER BY year, state LIMIT 1",
		"--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "year,state\n2021,Goa\n", out)
}

func TestQueryCommand_InputFile(t *testing.T) {
	site := testutil.SetupTestSite(t)
	sqlFile := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(sqlFile, []byte("SELECT COUNT(*) AS n FROM {{.Alias}} WHERE year = 2022"), 0o600))

	out, err := execute(t, site, "query", testutil.AccidentsID, "--input", sqlFile, "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "n\n3\n", out)
}

func TestQueryCommand_UnknownDataset(t *testing.T) {
	site := testutil.SetupTestSite(t)

	_, err := execute(t, site, "query", "nope", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in catalog")
}

func TestQueryCommand_Datasets(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "query", "datasets", "--format", "csv")
	require.NoError(t, err)

	assert.Contains(t, out, testutil.AccidentsID)
	assert.Contains(t, out, query.AliasFor("data/processed/"+testutil.AccidentsID+".parquet"))
	assert.NotContains(t, out, testutil.StubID, "disabled datasets are not queryable")
}

func TestQueryCommand_Schema(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "query", "schema", testutil.AccidentsID, "--format", "md")
	require.NoError(t, err)

	assert.Contains(t, out, "| column_name | column_type | nullable |")
	assert.Contains(t, out, "metric_value")
	assert.Contains(t, out, "DOUBLE")
	testutil.AssertValidMarkdown(t, out)
}

func TestNewQueryCommand(t *testing.T) {
	cmd := NewQueryCommand()

	assert.Equal(t, "query [source_id] [SQL]", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("format"))
	assert.NotNil(t, cmd.Flags().Lookup("input"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "datasets")
	assert.Contains(t, names, "schema")
}

func TestDatasetRows(t *testing.T) {
	cat := catalog.New([]catalog.Entry{
		{SourceID: "a", Status: "ok", OutputTablePath: "data/processed/a.parquet"},
		{SourceID: "b", Status: "stubs_disabled", SkipReason: "manual download required"},
		{SourceID: "c"},
	})

	rs := datasetRows(cat)
	assert.Equal(t, []string{"source_id", "alias", "table"}, rs.Columns)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, "a", rs.Rows[0]["source_id"])
	assert.Equal(t, "data/processed/a.parquet", rs.Rows[0]["table"])
	assert.Equal(t, "data/processed/c.parquet", rs.Rows[1]["table"])
}

func TestRenderResults(t *testing.T) {
	rs := resultSet{
		Columns: []string{"state", "killed"},
		Rows: []engine.Row{
			{"state": "Kerala", "killed": 4300},
			{"state": "Goa", "killed": nil},
		},
	}

	tests := []struct {
		format string
		want   []string
	}{
		{"table", []string{"state", "killed", "Kerala", "NULL", "(2 rows)"}},
		{"csv", []string{"state,killed\n", "Kerala,4300\n", "Goa,NULL\n"}},
		{"md", []string{"| state | killed |", "| --- | --- |", "| Kerala | 4300 |"}},
		{"json", []string{`"state": "Kerala"`, `"killed": null`}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := new(bytes.Buffer)
			require.NoError(t, renderResults(buf, rs, tt.format))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestRenderResults_TableKeepsHeaderCase(t *testing.T) {
	buf := new(bytes.Buffer)
	rs := resultSet{Columns: []string{"metric_value"}, Rows: []engine.Row{{"metric_value": 1.5}}}
	require.NoError(t, renderResults(buf, rs, "table"))

	assert.Contains(t, buf.String(), "metric_value")
	assert.NotContains(t, buf.String(), "METRIC")
}

func TestRenderResults_NoColumnsUsesRowKeys(t *testing.T) {
	buf := new(bytes.Buffer)
	rs := resultSet{Rows: []engine.Row{{"b": 1, "a": 2}}}
	require.NoError(t, renderResults(buf, rs, "csv"))
	assert.Equal(t, "a,b\n2,1\n", buf.String())
}

func TestRenderResults_Empty(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, renderResults(buf, resultSet{}, "table"))
	assert.Equal(t, "(0 rows)\n", buf.String())

	buf.Reset()
	require.NoError(t, renderResults(buf, resultSet{}, "json"))
	assert.Equal(t, "[]\n", buf.String())
}

func TestReplPrompt(t *testing.T) {
	s := &replState{}
	assert.Equal(t, replPrompt, s.prompt())

	s.current = testutil.AccidentsID
	assert.Equal(t, "roadlens:"+testutil.AccidentsID+"> ", s.prompt())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		input    any
		expected string
	}{
		{nil, "NULL"},
		{"hello", "hello"},
		{42, "42"},
		{3.14, "3.14"},
		{true, "true"},
	}

	for _, tt := range tests {
		result := formatValue(tt.input)
		assert.Equal(t, tt.expected, result)
	}
}

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"with,comma", `"with,comma"`},
		{`with"quote`, `"with""quote"`},
		{"with\nnewline", `"with
newline"`},
		{`complex,"values"`, `"complex,""values"""`},
	}

	for _, tt := range tests {
		result := escapeCSV(tt.input)
		assert.Equal(t, tt.expected, result)
	}
}
