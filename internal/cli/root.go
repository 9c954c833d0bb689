// Package cli provides the command-line interface for roadlens.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/leapstack-labs/roadlens/internal/cli/commands"
	"github.com/leapstack-labs/roadlens/internal/cli/config"
	"github.com/leapstack-labs/roadlens/internal/cli/output"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// rendererKey is used to store renderer in context.
type rendererKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roadlens",
		Short: "roadlens - road safety and infrastructure analytics",
		Long: `roadlens builds the analytics behind a static road safety dashboard.

It locates the published dataset catalog from any page location, starts an
embedded DuckDB engine with capability-based variant selection, and runs the
themed aggregations over the columnar files the catalog points at.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := cfg.NewLogger(cmd.ErrOrStderr())
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)

			// Create and store renderer based on output mode
			mode := output.Mode(cfg.OutputFormat)
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			ctx = context.WithValue(ctx, rendererKey{}, renderer)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					logger.Debug("using config file", "path", configFile)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go and DuckDB
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./roadlens.yaml)")

	// Site and catalog
	pf.String("location", "", "Page URL or path the dashboard is served from (default: /apps/web/)")
	pf.String("origin", "", "Site origin to fetch from: https://host, file:///dir or s3://bucket/prefix")
	pf.String("marker", "", "Application root segment used to detect the repository prefix")
	pf.String("catalog", "", "Logical path of the dataset catalog")
	pf.String("site-dir", "", "Local copy of the published site, used when no origin is set (default: .)")
	pf.Duration("timeout", 0, "Timeout for a single fetch")

	// Engine
	pf.StringSlice("module", nil, "Engine modules to try, in order")
	pf.String("database", "", "DuckDB database path (empty for in-memory)")
	pf.String("scratch-dir", "", "Directory for registered file buffers")
	pf.Int("threads", 0, "Engine threads (0 for engine default)")
	pf.StringSlice("extension", nil, "DuckDB extensions to load")
	pf.Bool("simd", false, "Force the SIMD capability flag")
	pf.Bool("exceptions", false, "Force the native exceptions capability flag")

	// S3 origin
	pf.String("s3-region", "", "AWS region for s3:// origins")
	pf.String("s3-endpoint", "", "Custom S3 endpoint")
	pf.Bool("s3-path-style", false, "Use path-style S3 addressing")

	// Output and logging
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("module", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"duckdb"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(commands.NewResolveCommand())
	rootCmd.AddCommand(commands.NewCatalogCommand())
	rootCmd.AddCommand(commands.NewCountCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewEngineCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewSmokeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return config.Default()
}

// GetRenderer retrieves the renderer from the command context.
func GetRenderer(ctx context.Context) *output.Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	return output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for roadlens.

To load completions:

Bash:
  $ source <(roadlens completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ roadlens completion bash > /etc/bash_completion.d/roadlens
  # macOS:
  $ roadlens completion bash > $(brew --prefix)/etc/bash_completion.d/roadlens

Zsh:
  $ roadlens completion zsh > "${fpath[1]}/_roadlens"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ roadlens completion fish > ~/.config/fish/completions/roadlens.fish

PowerShell:
  PS> roadlens completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
