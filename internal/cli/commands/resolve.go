package commands

import (
	"strconv"

	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/spf13/cobra"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	External string
	Check    bool
}

// CandidateOutput is one resolved candidate.
type CandidateOutput struct {
	Candidate string `json:"candidate"`
	Location  string `json:"location"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResolveOutput is the JSON output for the resolve command.
type ResolveOutput struct {
	Path       string            `json:"path"`
	Prefix     string            `json:"prefix"`
	PageDir    string            `json:"page_dir"`
	Candidates []CandidateOutput `json:"candidates"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show the candidate locations for a site path",
		Long: `List the ordered candidate paths a logical site path resolves to for the
configured page location, and where each one is fetched from.

With --check every candidate is fetched and its outcome reported.`,
		Example: `  roadlens resolve data/manifests/catalog.json
  roadlens resolve duckdb/duckdb-eh.wasm --external https://cdn.example.org/duckdb-eh.wasm
  roadlens resolve data/processed/morth_rts.parquet --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.External, "external", "", "External URL appended as the last candidate")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Fetch each candidate and report the result")

	return cmd
}

func runResolve(cmd *cobra.Command, path string, opts *ResolveOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	sess := cmdCtx.Session
	r := cmdCtx.Renderer

	out := ResolveOutput{
		Path:    path,
		Prefix:  sess.Resolver.Prefix(),
		PageDir: sess.Resolver.PageDir(),
	}
	for _, c := range sess.Resolver.ResolveWithFallback(path, opts.External) {
		co := CandidateOutput{Candidate: c, Location: sess.Fetcher.Locate(c)}
		if opts.Check {
			if _, err := sess.Fetcher.Fetch(cmd.Context(), c); err != nil {
				co.Status, co.Error = "error", err.Error()
			} else {
				co.Status = "ok"
			}
		}
		out.Candidates = append(out.Candidates, co)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Candidates for "+path)
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Prefix", out.Prefix))
		r.Println(output.FormatKeyValue("Page directory", out.PageDir))
		r.Println()
	} else {
		r.Muted("prefix " + out.Prefix + "  page " + out.PageDir)
	}

	headers := []string{"#", "candidate", "location"}
	if opts.Check {
		headers = append(headers, "status")
	}
	rows := make([][]string, 0, len(out.Candidates))
	for i, c := range out.Candidates {
		row := []string{strconv.Itoa(i + 1), c.Candidate, c.Location}
		if opts.Check {
			status := c.Status
			if c.Error != "" {
				status += ": " + c.Error
			}
			row = append(row, status)
		}
		rows = append(rows, row)
	}
	r.Table(headers, rows)
	return nil
}
