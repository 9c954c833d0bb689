package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/spf13/cobra"
)

// CatalogOutput is the JSON output for the catalog command.
type CatalogOutput struct {
	Source      string           `json:"source"`
	GeneratedAt string           `json:"generated_at,omitempty"`
	Datasets    []*catalog.Entry `json:"datasets"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the datasets in the catalog",
		Long: `Load the dataset catalog through the resolver and list every entry with its
status, metric category, confidence badge and declared row count.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table
  - JSON: the parsed catalog entries`,
		Example: `  roadlens catalog
  roadlens catalog --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalog(cmd)
		},
	}
}

func runCatalog(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	cat, err := cmdCtx.Session.LoadCatalog(cmd.Context())
	if err != nil {
		return reportError(r, err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(CatalogOutput{
			Source:      cat.Source,
			GeneratedAt: cat.GeneratedAt,
			Datasets:    cat.Entries(),
		})
	}

	styles := r.Styles()
	r.Header(1, fmt.Sprintf("Datasets (%d)", cat.Len()))
	rows := make([][]string, 0, cat.Len())
	for _, e := range cat.Entries() {
		declared := "-"
		if e.Manifest.RowCount != nil {
			declared = strconv.FormatInt(*e.Manifest.RowCount, 10)
		}
		status := e.Status
		if e.Disabled() {
			status = styles.Muted.Render(status + " (" + e.SkipReason + ")")
		}
		rows = append(rows, []string{
			e.SourceID,
			status,
			e.MetricCategory,
			styles.Badge(e.Confidence),
			declared,
			e.TablePath(),
		})
	}
	r.Table([]string{"source_id", "status", "category", "confidence", "rows", "table"}, rows)
	if r.EffectiveMode() != output.ModeMarkdown {
		r.Muted("loaded from " + cat.Source)
	}
	return nil
}
