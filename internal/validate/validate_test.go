package validate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parquetBody = "PAR1fakeparquetPAR1"

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

const goodEntry = `{
  "source_id": "morth_rts",
  "status": "ok",
  "metric_category": "official_measured",
  "source": {"publisher": "MoRTH", "license_terms": "GODL", "retrieved_at": "2025-01-01", "official_flag": true},
  "citations": {"permanent_identifier": "https://morth.nic.in/rts", "anchor": "Table 1"},
  "overall_confidence_badge": "high",
  "output_table_path": "data/processed/morth_rts.parquet"
}`

func newSite(t *testing.T, datasets ...string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "data/manifests/catalog.json", `{"datasets": [`+strings.Join(datasets, ",")+`]}`)
	return dir
}

func runValidate(t *testing.T, dir string, opts Options) *Report {
	t.Helper()
	v := New(location.New(location.Config{Location: "/"}), fetch.NewDir(dir), nil)
	report, err := v.Validate(context.Background(), opts)
	require.NoError(t, err)
	return report
}

func messages(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.String())
	}
	return out
}

func TestValidate_CleanSite(t *testing.T) {
	dir := newSite(t, goodEntry)
	writeFile(t, dir, "data/processed/morth_rts.parquet", parquetBody)
	writeFile(t, dir, "data/manifests/morth_rts.json", `{"manifest": {"output_files": [
		{"path": "data/processed/morth_rts.parquet", "sha256": "`+sha(parquetBody)+`"}
	]}}`)

	report := runValidate(t, dir, Options{})
	assert.Empty(t, report.Findings)
	assert.Equal(t, 1, report.Datasets)
	assert.Equal(t, "/data/manifests/catalog.json", report.Catalog)
	assert.False(t, report.Failed(true))
}

func TestValidate_MissingCatalog(t *testing.T) {
	report := runValidate(t, t.TempDir(), Options{})
	require.Len(t, report.Errors(), 1)
	assert.Contains(t, report.Errors()[0].Message, "catalog is missing")
	assert.True(t, report.Failed(false))
}

func TestValidate_EmptyCatalog(t *testing.T) {
	report := runValidate(t, newSite(t), Options{})
	assert.Equal(t, []string{"catalog is empty"}, messages(report.Errors()))
}

func TestValidate_EntryChecks(t *testing.T) {
	proxy := `{
	  "source_id": "ntl_proxy",
	  "status": "ok",
	  "metric_category": "proxy_derived",
	  "source": {"publisher": "VIIRS"},
	  "citations": {"permanent_identifier": "doi:10/abc"},
	  "overall_confidence_badge": "low",
	  "output_table_path": "data/processed/ntl_proxy.parquet"
	}`
	model := `{
	  "source_id": "risk_model",
	  "metric_category": "model_output",
	  "source": {"publisher": "x", "license_terms": "y", "retrieved_at": "z", "official_flag": false},
	  "citations": {"permanent_identifier": "p", "anchor": "a"},
	  "overall_confidence_badge": "med",
	  "output_table_path": "data/processed/risk_model.parquet"
	}`
	odd := `{
	  "source_id": "odd",
	  "status": "ok",
	  "metric_category": "vibes",
	  "source": {"publisher": "x", "license_terms": "y", "retrieved_at": "z"},
	  "citations": {"permanent_identifier": "p", "anchor": "a"},
	  "overall_confidence_badge": "med",
	  "output_table_path": "data/processed/odd.parquet"
	}`
	dir := newSite(t, proxy, model, odd, `{"status": "ok"}`)
	writeFile(t, dir, "data/processed/ntl_proxy.parquet", "")
	writeFile(t, dir, "data/processed/risk_model.parquet", parquetBody)

	report := runValidate(t, dir, Options{})

	errs := messages(report.Errors())
	assert.Contains(t, errs, "ntl_proxy: missing citations.anchor")
	assert.Contains(t, errs, "risk_model: missing required catalog field: status")
	assert.Contains(t, errs, "catalog entry missing source_id")
	assertAnyPrefix(t, errs, "odd: missing output table data/processed/odd.parquet")

	warns := messages(report.Warnings())
	assert.Contains(t, warns, "ntl_proxy: missing source.license_terms")
	assert.Contains(t, warns, "ntl_proxy: missing source.retrieved_at")
	assert.Contains(t, warns, "ntl_proxy: proxy source should keep source.official_flag=false")
	assert.Contains(t, warns, "ntl_proxy: output table is empty (data/processed/ntl_proxy.parquet)")
	assert.Contains(t, warns, `odd: non-standard metric_category: "vibes"`)
	assert.Contains(t, warns, "risk_model: missing per-source manifest")
	assert.NotContains(t, warns, "risk_model: model output should keep source.official_flag=false")

	assert.Equal(t, 3, report.Datasets)
}

func TestValidate_ManifestOutputFiles(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "no output files",
			manifest: `{"manifest": {"output_files": []}}`,
			wantErr:  "morth_rts: manifest has no output_files",
		},
		{
			name:     "file missing",
			manifest: `{"manifest": {"output_files": [{"path": "data/processed/gone.parquet"}]}}`,
			wantErr:  "morth_rts: manifest output file missing: data/processed/gone.parquet",
		},
		{
			name:     "sha mismatch",
			manifest: `{"manifest": {"output_files": [{"path": "data/processed/morth_rts.parquet", "sha256": "deadbeef"}]}}`,
			wantErr:  "morth_rts: manifest sha mismatch: data/processed/morth_rts.parquet",
		},
		{
			name:     "invalid json",
			manifest: `{`,
			wantErr:  "morth_rts: per-source manifest is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newSite(t, goodEntry)
			writeFile(t, dir, "data/processed/morth_rts.parquet", parquetBody)
			writeFile(t, dir, "data/manifests/morth_rts.json", tt.manifest)

			report := runValidate(t, dir, Options{})
			assertAnyPrefix(t, messages(report.Errors()), tt.wantErr)
		})
	}
}

func TestValidate_EmbeddedManifestUsedWithoutPerSourceFile(t *testing.T) {
	entry := strings.Replace(goodEntry, `"status": "ok",`,
		`"status": "ok", "manifest": {"output_files": [{"path": "data/processed/morth_rts.parquet", "sha256": "00"}]},`, 1)
	dir := newSite(t, entry)
	writeFile(t, dir, "data/processed/morth_rts.parquet", parquetBody)

	report := runValidate(t, dir, Options{})
	assert.Equal(t, []string{"morth_rts: manifest sha mismatch: data/processed/morth_rts.parquet"}, messages(report.Errors()))
	assert.Equal(t, []string{"morth_rts: missing per-source manifest"}, messages(report.Warnings()))
	assert.True(t, report.Failed(false))
}

func TestValidate_Inventory(t *testing.T) {
	corr := strings.ReplaceAll(goodEntry, "morth_rts", "correlation_matrix")
	extra := strings.ReplaceAll(goodEntry, "morth_rts", "extra_source")
	dir := newSite(t, goodEntry, corr, extra)
	for _, id := range []string{"morth_rts", "correlation_matrix", "extra_source"} {
		writeFile(t, dir, "data/processed/"+id+".parquet", parquetBody)
		writeFile(t, dir, "data/manifests/"+id+".json",
			`{"manifest": {"output_files": [{"path": "data/processed/`+id+`.parquet"}]}}`)
	}
	inv := filepath.Join(t.TempDir(), "source_inventory.yaml")
	require.NoError(t, os.WriteFile(inv, []byte(`
sources:
  - source_id: morth_rts
  - source_id: ncrb_adsi
`), 0o600))

	report := runValidate(t, dir, Options{Inventory: inv})
	assert.Empty(t, report.Errors())
	assert.Equal(t, []string{
		"ncrb_adsi: inventory source missing from catalog",
		"extra_source: catalog has non-inventory source",
	}, messages(report.Warnings()))
	assert.False(t, report.Failed(false))
	assert.True(t, report.Failed(true))
}

func TestValidate_BadInventory(t *testing.T) {
	inv := filepath.Join(t.TempDir(), "inv.yaml")
	require.NoError(t, os.WriteFile(inv, []byte("sources: []\n"), 0o600))

	report := runValidate(t, newSite(t, goodEntry), Options{Inventory: inv})
	require.Len(t, report.Errors(), 1)
	assert.Contains(t, report.Errors()[0].Message, "source inventory could not be loaded")
}

func TestValidate_CancelledContext(t *testing.T) {
	dir := newSite(t, goodEntry)
	v := New(location.New(location.Config{Location: "/"}), fetch.NewDir(dir), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func assertAnyPrefix(t *testing.T, got []string, prefix string) {
	t.Helper()
	for _, g := range got {
		if strings.HasPrefix(g, prefix) {
			return
		}
	}
	t.Errorf("no finding starts with %q in %v", prefix, got)
}
