package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/leapstack-labs/roadlens/internal/smoke"
	"github.com/spf13/cobra"
)

// SmokeOptions holds options for the smoke command.
type SmokeOptions struct {
	Heading    string
	MinCards   int
	Selector   string
	Settle     time.Duration
	Screenshot string
	Browser    string
}

// NewSmokeCommand creates the smoke command.
func NewSmokeCommand() *cobra.Command {
	opts := &SmokeOptions{}

	cmd := &cobra.Command{
		Use:   "smoke [url]",
		Short: "Load the deployed dashboard in a headless browser",
		Long: `Open the dashboard in headless Chrome and fail when:
  - the catalog or engine error banner is shown
  - fewer than --min-cards metric cards rendered
  - a request failed or returned an error status (404s from path probing are ignored)
  - the console logged errors

The URL defaults to --location when it is an absolute URL.`,
		Example: `  roadlens smoke https://example.github.io/repo/apps/web/
  roadlens smoke --heading "Road Safety" --screenshot smoke.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmoke(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Heading, "heading", "", "Text the first h1 must contain")
	cmd.Flags().IntVar(&opts.MinCards, "min-cards", smoke.DefaultMinCards, "Minimum number of metric cards")
	cmd.Flags().StringVar(&opts.Selector, "card-selector", smoke.DefaultCardSelector, "CSS selector of a metric card")
	cmd.Flags().DurationVar(&opts.Settle, "settle", smoke.DefaultSettle, "Wait after page load")
	cmd.Flags().StringVar(&opts.Screenshot, "screenshot", "", "Write a full-page PNG screenshot")
	cmd.Flags().StringVar(&opts.Browser, "browser", "", "Path to the Chrome binary")

	return cmd
}

func runSmoke(cmd *cobra.Command, args []string, opts *SmokeOptions) error {
	cmdCtx := NewCommandContextWithoutSession(cmd)
	r := cmdCtx.Renderer

	url := cmdCtx.Cfg.Site.Location
	if len(args) > 0 {
		url = args[0]
	}
	if !location.IsAbsoluteURL(url) {
		return fmt.Errorf("smoke needs an http(s) URL, got %q", url)
	}

	timeout := smoke.DefaultTimeout
	if t := cmdCtx.Cfg.Fetch.Timeout; t > timeout {
		timeout = t
	}

	res, err := smoke.Run(cmd.Context(), smoke.Options{
		URL:          url,
		Heading:      opts.Heading,
		MinCards:     opts.MinCards,
		CardSelector: opts.Selector,
		Settle:       opts.Settle,
		Timeout:      timeout,
		Screenshot:   opts.Screenshot,
		ExecPath:     opts.Browser,
		Logger:       cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(res); err != nil {
			return err
		}
	} else {
		r.Header(1, "Browser smoke")
		r.Muted(fmt.Sprintf("%s (%d metric cards)", res.URL, res.Cards))
		if res.Passed() {
			r.StatusLine("smoke passed", "ok", "")
		}
		for _, p := range res.Problems {
			r.StatusLine(p, "error", "")
		}
		if res.Screenshot != "" {
			r.Muted("screenshot: " + res.Screenshot)
		}
	}

	if !res.Passed() {
		return fmt.Errorf("browser smoke failed with %d problems", len(res.Problems))
	}
	return nil
}
