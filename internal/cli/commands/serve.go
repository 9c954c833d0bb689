package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/roadlens/internal/cli/config"
	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/leapstack-labs/roadlens/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site with a live dashboard build",
		Long: `Serve the static site directory and build the dashboard bundle against it.

Endpoints:
  /api/dashboard   latest committed bundle (503 while building or on failure)
  /api/events      server-sent events, one per committed build
  /api/rebuild     POST to force a rebuild
  /metrics         prometheus metrics

With --watch, changes to data files under the site directory trigger a
rebuild. A rebuild that finishes after a newer one started is discarded.`,
		Example: `  roadlens serve --site-dir ./site --watch
  roadlens serve --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().Int("port", config.DefaultPort, "Port to listen on")
	cmd.Flags().Bool("watch", false, "Rebuild when data files change")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cmdCtx := NewCommandContextWithoutSession(cmd)
	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger

	if err := cfg.ValidateSiteDir(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(server.Config{
		Port:     cfg.Server.Port,
		Watch:    cfg.Server.Watch,
		SiteDir:  cfg.Server.SiteDir,
		Build:    sessionBuild(cfg, logger, reg),
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmdCtx.Renderer.Success("Serving " + cfg.Server.SiteDir)
	return srv.Serve(ctx)
}

// sessionBuild builds each bundle on its own session.
func sessionBuild(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) server.BuildFunc {
	return func(ctx context.Context) (*dashboard.Bundle, error) {
		sess, err := NewSession(ctx, cfg, logger, reg)
		if err != nil {
			return nil, err
		}
		defer func() { _ = sess.Close() }()
		return dashboard.Build(ctx, sess.Deps())
	}
}
