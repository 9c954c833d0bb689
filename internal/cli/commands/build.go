package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/roadlens/internal/analytics"
	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/spf13/cobra"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	OutFile string
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the dashboard bundle",
		Long: `Resolve the site, load the dataset catalog, start the engine, count rows
and compute every analysis theme. The result is the JSON bundle the
dashboard renders.

Dataset and theme failures degrade their cards; only catalog and engine
failures abort the build.`,
		Example: `  # Summarize the dashboard for a local copy of the site
  roadlens build --site-dir ./site

  # Write the bundle for a deployed page
  roadlens build --location https://example.github.io/roadlens/apps/web/ -f bundle.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.OutFile, "file", "f", "", "Write the bundle JSON to this file")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	start := time.Now()

	bundle, err := dashboard.Build(cmd.Context(), cmdCtx.Session.Deps())
	if err != nil {
		return reportError(r, err)
	}
	cmdCtx.Logger.Debug("dashboard built", "duration", time.Since(start).Round(time.Millisecond))

	if opts.OutFile != "" {
		if err := writeBundle(opts.OutFile, bundle); err != nil {
			return err
		}
		if r.EffectiveMode() != output.ModeJSON {
			r.Success(fmt.Sprintf("Wrote %s (%d datasets, %d themes)", opts.OutFile, len(bundle.Datasets), len(bundle.Themes)))
		}
		return nil
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(bundle)
	}
	renderBundle(r, bundle)
	return nil
}

func writeBundle(path string, bundle *dashboard.Bundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}

func renderBundle(r *output.Renderer, b *dashboard.Bundle) {
	styles := r.Styles()

	r.Header(1, "Dashboard")
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Catalog", b.Catalog.Source))
		r.Println(output.FormatKeyValue("Generated", b.Catalog.GeneratedAt))
		r.Println(output.FormatKeyValue("Engine", fmt.Sprintf("%s (%s)", b.Engine.Module, b.Engine.Variant)))
		r.Println()
	} else {
		r.Printf("Catalog:   %s\n", b.Catalog.Source)
		r.Printf("Generated: %s\n", b.Catalog.GeneratedAt)
		r.Printf("Engine:    %s (%s)\n\n", b.Engine.Module, b.Engine.Variant)
	}

	r.Header(2, fmt.Sprintf("Datasets (%d)", len(b.Datasets)))
	rows := make([][]string, 0, len(b.Datasets))
	for _, c := range b.Datasets {
		note := c.Citation
		if c.Disabled {
			note = "disabled: " + c.SkipReason
		}
		rows = append(rows, []string{
			c.SourceID,
			c.MetricCategory,
			strconv.FormatInt(c.RowCount, 10),
			styles.Badge(c.Confidence),
			note,
		})
	}
	r.Table([]string{"source_id", "category", "rows", "confidence", "citation"}, rows)
	r.Println()

	r.Header(2, fmt.Sprintf("Themes (%d)", len(b.Themes)))
	rows = rows[:0]
	for _, t := range b.Themes {
		state := fmt.Sprintf("%d series", seriesSize(t))
		if t.Error != "" {
			state = "unavailable: " + t.Error
		}
		rows = append(rows, []string{t.ID, styles.Badge(t.Confidence), strings.Join(t.Sources, ", "), state})
	}
	r.Table([]string{"theme", "confidence", "sources", "result"}, rows)

	if len(b.Diagnostics) > 0 {
		r.Println()
		r.Header(2, fmt.Sprintf("Diagnostics (%d)", len(b.Diagnostics)))
		for _, e := range b.Diagnostics {
			r.StatusLine(string(e.Kind), "warning", e.String())
		}
	}
}

func seriesSize(t analytics.Theme) int {
	n := len(t.Points) + len(t.Bars) + len(t.Scatter) + len(t.Table)
	for _, l := range t.Lines {
		n += len(l.Points)
	}
	return n
}
