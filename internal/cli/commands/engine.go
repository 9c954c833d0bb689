package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/leapstack-labs/roadlens/internal/diag"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/spf13/cobra"
)

// EngineOutput is the JSON output for the engine command.
type EngineOutput struct {
	SessionID string          `json:"session_id"`
	Module    string          `json:"module"`
	Platform  engine.Platform `json:"platform"`
	Bundle    engine.Bundle   `json:"bundle"`
	Modules   []string        `json:"registered_modules"`
	Failures  []diag.Event    `json:"failures"`
}

// NewEngineCommand creates the engine command.
func NewEngineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "engine",
		Short: "Start the analytics engine and report how it booted",
		Long: `Run the engine bootstrap once and report the module, detected platform
capabilities, selected variant and asset bundle, plus every failed attempt
on the way.

Use --simd/--exceptions to force capability flags and --module to try other
registered modules first.`,
		Example: `  roadlens engine
  roadlens engine --simd=false --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngine(cmd)
		},
	}
}

func runEngine(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	sess := cmdCtx.Session

	h, err := sess.Bootstrap(cmd.Context())
	if err != nil {
		for _, e := range sess.Diagnostics.Snapshot() {
			r.StatusLine(e.Resource, "error", e.String())
		}
		return reportError(r, err)
	}

	out := EngineOutput{
		SessionID: h.SessionID,
		Module:    h.Module,
		Platform:  h.Platform,
		Bundle:    h.Bundle,
		Modules:   engine.ListModules(),
		Failures:  sess.Diagnostics.Snapshot(),
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Engine")
	pairs := [][2]string{
		{"Session", out.SessionID},
		{"Module", out.Module},
		{"Variant", string(out.Bundle.Variant)},
		{"SIMD", strconv.FormatBool(out.Platform.SIMD)},
		{"Exceptions", strconv.FormatBool(out.Platform.Exceptions)},
		{"Module URL", out.Bundle.ModuleURL},
		{"Worker URL", out.Bundle.WorkerURL},
		{"Registered", strings.Join(out.Modules, ", ")},
	}
	for _, p := range pairs {
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Println(output.FormatKeyValue(p[0], p[1]))
		} else {
			r.Printf("%-11s %s\n", p[0]+":", p[1])
		}
	}

	if len(out.Failures) > 0 {
		r.Println()
		r.Header(2, fmt.Sprintf("Failed attempts (%d)", len(out.Failures)))
		for _, e := range out.Failures {
			r.StatusLine(e.Resource, "warning", e.String())
		}
	}
	return nil
}
