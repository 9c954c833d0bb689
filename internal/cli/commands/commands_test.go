package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/cli/config"
	"github.com/leapstack-labs/roadlens/internal/cli/testutil"
	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/leapstack-labs/roadlens/internal/validate"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRoot mirrors the root command's config loading for the flags the
// commands read.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use: "roadlens",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig("", cmd.Flags())
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(cmd.ErrOrStderr())
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("location", "", "")
	pf.String("site-dir", "", "")
	pf.String("catalog", "", "")
	pf.StringP("output", "o", "", "")
	pf.String("log-level", "", "")

	root.AddCommand(
		NewCatalogCommand(),
		NewCountCommand(),
		NewResolveCommand(),
		NewBuildCommand(),
		NewQueryCommand(),
		NewEngineCommand(),
		NewValidateCommand(),
	)
	return root
}

// execute runs args against the published site in siteDir.
func execute(t *testing.T, siteDir string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	root := newTestRoot()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--site-dir", siteDir, "--location", "/", "--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogCommand_JSON(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "json", "catalog")
	require.NoError(t, err)

	var got struct {
		Source   string          `json:"source"`
		Datasets []catalog.Entry `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.True(t, strings.HasSuffix(got.Source, catalog.DefaultPath), got.Source)
	require.Len(t, got.Datasets, 2)
	assert.Equal(t, testutil.AccidentsID, got.Datasets[0].SourceID)
	assert.Equal(t, testutil.StubID, got.Datasets[1].SourceID)
	assert.True(t, got.Datasets[1].Disabled())
}

func TestCatalogCommand_Markdown(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "markdown", "catalog")
	require.NoError(t, err)

	assert.Contains(t, out, "# Datasets (2)")
	assert.Contains(t, out, testutil.AccidentsID)
	assert.Contains(t, out, "manual download required")
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
}

func TestCatalogCommand_MissingCatalog(t *testing.T) {
	_, err := execute(t, t.TempDir(), "-o", "json", "catalog")
	require.Error(t, err)

	var dErr *dashboard.Error
	require.True(t, errors.As(err, &dErr))
	assert.Equal(t, dashboard.StageCatalog, dErr.Stage)
	assert.Equal(t, dashboard.MessageCatalog, dErr.Message)
}

func TestCountCommand(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "json", "count")
	require.NoError(t, err)

	var got []CountResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []CountResult{
		{SourceID: testutil.AccidentsID, Rows: testutil.AccidentRows, Method: countQueried},
		{SourceID: testutil.StubID, Rows: 3, Method: countDisabled},
	}, got)
}

func TestCountCommand_FallsBackToCatalog(t *testing.T) {
	site := testutil.SetupTestSite(t)
	require.NoError(t, os.Remove(filepath.Join(site, "data", "processed", testutil.AccidentsID+".parquet")))

	out, err := execute(t, site, "-o", "json", "count", testutil.AccidentsID)
	require.NoError(t, err)

	var got []CountResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(testutil.AccidentRows), got[0].Rows)
	assert.Equal(t, countFallback, got[0].Method)
}

func TestCountCommand_UnknownDataset(t *testing.T) {
	site := testutil.SetupTestSite(t)

	_, err := execute(t, site, "count", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `dataset "nope" not in catalog`)
}

func TestResolveCommand_Check(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "json", "resolve", catalog.DefaultPath, "--check")
	require.NoError(t, err)

	var got ResolveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, catalog.DefaultPath, got.Path)
	require.NotEmpty(t, got.Candidates)

	var ok int
	for _, c := range got.Candidates {
		if c.Status == "ok" {
			ok++
		}
	}
	assert.Positive(t, ok, "at least one candidate should be fetchable: %+v", got.Candidates)
}

func TestBuildCommand_WritesBundle(t *testing.T) {
	site := testutil.SetupTestSite(t)
	dst := filepath.Join(t.TempDir(), "out", "bundle.json")

	_, err := execute(t, site, "-o", "json", "build", "-f", dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)

	var bundle dashboard.Bundle
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.Equal(t, 2, bundle.Catalog.Datasets)
	assert.NotEmpty(t, bundle.Engine.SessionID)
	assert.NotEmpty(t, bundle.Themes)

	cards := map[string]dashboard.Card{}
	for _, c := range bundle.Datasets {
		cards[c.SourceID] = c
	}
	assert.Equal(t, int64(testutil.AccidentRows), cards[testutil.AccidentsID].RowCount)
	assert.True(t, cards[testutil.StubID].Disabled)
}

func TestBuildCommand_Markdown(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "markdown", "build")
	require.NoError(t, err)

	assert.Contains(t, out, "# Dashboard")
	assert.Contains(t, out, "## Datasets (2)")
	assert.Contains(t, out, "disabled: manual download required")
	testutil.AssertValidMarkdown(t, out)
}

func TestEngineCommand_JSON(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "json", "engine")
	require.NoError(t, err)

	var got EngineOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.SessionID)
	assert.NotEmpty(t, got.Module)
	assert.Contains(t, got.Modules, got.Module)
}

func TestValidateCommand(t *testing.T) {
	site := testutil.SetupTestSite(t)

	out, err := execute(t, site, "-o", "json", "validate")
	require.Error(t, err, "the disabled stub lacks citations and a table")
	assert.Contains(t, err.Error(), "artifact validation failed")

	var report validate.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Datasets)

	for _, f := range report.Errors() {
		assert.Equal(t, testutil.StubID, f.SourceID, "unexpected error: %s", f)
	}
	assert.NotEmpty(t, report.Errors())
}

func TestValidateCommand_CleanSite(t *testing.T) {
	site := testutil.SetupTestSite(t)

	// Keep only the complete entry.
	path := filepath.Join(site, "data", "manifests", "catalog.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["datasets"] = doc["datasets"].([]any)[:1]
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	out, err := execute(t, site, "-o", "markdown", "validate", "--fail-on-warning")
	require.NoError(t, err)
	assert.Contains(t, out, "Artifact validation")
	assert.NotContains(t, out, "Warnings")
}

func TestSelectEntries(t *testing.T) {
	cat := catalog.New([]catalog.Entry{
		{SourceID: testutil.AccidentsID},
		{SourceID: testutil.StubID},
	})

	all, err := selectEntries(cat, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := selectEntries(cat, []string{testutil.StubID, testutil.AccidentsID})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, testutil.StubID, picked[0].SourceID)

	_, err = selectEntries(cat, []string{"missing"})
	require.Error(t, err)
}

func TestNewCommands(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewBuildCommand(), "build", []string{"file"}},
		{NewResolveCommand(), "resolve <path>", []string{"external", "check"}},
		{NewCatalogCommand(), "catalog", nil},
		{NewCountCommand(), "count [source_id...]", nil},
		{NewEngineCommand(), "engine", nil},
		{NewServeCommand(), "serve", []string{"port", "watch"}},
		{NewValidateCommand(), "validate", []string{"inventory", "manifests", "fail-on-warning"}},
		{NewSmokeCommand(), "smoke [url]", []string{"heading", "min-cards", "card-selector", "settle", "screenshot", "browser"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}
