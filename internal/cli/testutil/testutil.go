// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/roadlens/internal/cli/output"
	roottestutil "github.com/leapstack-labs/roadlens/internal/testutil"
)

// Dataset ids in the test site.
const (
	AccidentsID  = "ncrb_road_accidents_state_year"
	StubID       = "morth_annual_report_pdf"
	AccidentRows = 6
)

// SetupTestSite creates a published site under a temp dir: a catalog with
// one queryable accident dataset and one manually disabled source, plus
// the parquet file and per-source manifest for the queryable one.
func SetupTestSite(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	table := filepath.Join(root, "data", "processed", AccidentsID+".parquet")
	roottestutil.WriteParquet(t, table, `
SELECT state, year, metric_name, CAST(metric_value AS DOUBLE) AS metric_value FROM (VALUES
	('Kerala', 2021, 'total_killed', 4000.0),
	('Kerala', 2022, 'total_killed', 4300.0),
	('Tamil Nadu', 2021, 'total_killed', 15000.0),
	('Tamil Nadu', 2022, 'total_killed', 17800.0),
	('Goa', 2021, 'total_killed', 220.0),
	('Goa', 2022, 'total_killed', 270.0)
) AS t(state, year, metric_name, metric_value)`)

	rows := AccidentRows
	doc := map[string]any{
		"generated_at": "2026-01-05T00:00:00Z",
		"datasets": []map[string]any{
			{
				"source_id":                AccidentsID,
				"status":                   "ok",
				"metric_category":          "official_measured",
				"output_table_path":        "data/processed/" + AccidentsID + ".parquet",
				"overall_confidence_badge": "High",
				"source": map[string]any{
					"publisher":     "NCRB",
					"title":         "Accidental Deaths and Suicides in India",
					"license_terms": "GODL",
					"retrieved_at":  "2026-01-04",
					"official_flag": true,
				},
				"citations": map[string]any{"permanent_identifier": "ADSI 2022", "anchor": "Table 1A.1"},
				"manifest":  map[string]any{"row_count": rows},
			},
			{
				"source_id":                StubID,
				"status":                   "stubs_disabled",
				"skip_reason":              "manual download required",
				"metric_category":          "official_measured",
				"overall_confidence_badge": "Low",
				"manifest":                 map[string]any{"row_count": 3},
			},
		},
	}
	writeJSON(t, filepath.Join(root, "data", "manifests", "catalog.json"), doc)
	writeJSON(t, filepath.Join(root, "data", "manifests", AccidentsID+".json"), map[string]any{
		"manifest": map[string]any{
			"output_files": []map[string]any{{"path": "data/processed/" + AccidentsID + ".parquet"}},
		},
	})

	return root
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
