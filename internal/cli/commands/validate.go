package commands

import (
	"fmt"

	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/leapstack-labs/roadlens/internal/validate"
	"github.com/spf13/cobra"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	Inventory     string
	ManifestDir   string
	FailOnWarning bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the published catalog, manifests and data files",
		Long: `Validate the artifacts the dashboard depends on, as served from the
configured origin.

Errors: missing required catalog fields or citations, output tables or
manifest files that cannot be fetched, sha256 mismatches.
Warnings: missing source metadata, proxy or model outputs not flagged
unofficial, non-standard categories, empty tables, inventory drift.

Exits non-zero on errors, or on warnings with --fail-on-warning.`,
		Example: `  roadlens validate
  roadlens validate --inventory research/source_inventory.yaml --fail-on-warning
  roadlens validate --origin https://example.github.io/repo --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Inventory, "inventory", "", "Source inventory YAML to cross-check")
	cmd.Flags().StringVar(&opts.ManifestDir, "manifests", validate.DefaultManifestDir, "Directory of per-source manifests")
	cmd.Flags().BoolVar(&opts.FailOnWarning, "fail-on-warning", false, "Exit non-zero when there are warnings")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	sess := cmdCtx.Session

	v := validate.New(sess.Resolver, sess.Fetcher, cmdCtx.Logger)
	report, err := v.Validate(cmd.Context(), validate.Options{
		CatalogPath: sess.CatalogPath,
		ManifestDir: opts.ManifestDir,
		Inventory:   opts.Inventory,
	})
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(report); err != nil {
			return err
		}
	} else {
		renderReport(r, report)
	}

	if report.Failed(opts.FailOnWarning) {
		return fmt.Errorf("artifact validation failed: %d errors, %d warnings",
			len(report.Errors()), len(report.Warnings()))
	}
	return nil
}

func renderReport(r *output.Renderer, report *validate.Report) {
	r.Header(1, "Artifact validation")
	if report.Catalog != "" {
		r.Muted(fmt.Sprintf("catalog: %s (%d datasets)", report.Catalog, report.Datasets))
	}

	errs := report.Errors()
	if len(errs) == 0 {
		r.StatusLine("errors: none", "ok", "")
	} else {
		r.Header(2, fmt.Sprintf("Errors (%d)", len(errs)))
		for _, f := range errs {
			r.StatusLine(f.String(), "error", "")
		}
	}

	if warns := report.Warnings(); len(warns) > 0 {
		r.Header(2, fmt.Sprintf("Warnings (%d)", len(warns)))
		for _, f := range warns {
			r.StatusLine(f.String(), "warning", "")
		}
	}
}
