// Package server is the local preview server: it serves the static site,
// rebuilds the dashboard bundle when site files change and publishes each
// committed build over JSON and server-sent events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// BuildFunc produces one dashboard bundle. Each call should use a fresh
// engine session.
type BuildFunc func(ctx context.Context) (*dashboard.Bundle, error)

// Config holds configuration for the preview server.
type Config struct {
	Port    int
	Watch   bool
	SiteDir string
	Build   BuildFunc

	// Registry backs /metrics. A private registry is used when nil.
	Registry *prometheus.Registry

	// Debounce delays rebuilds after file changes. Defaults to 250ms.
	Debounce time.Duration

	Logger *slog.Logger
}

// Snapshot is the last committed build.
type Snapshot struct {
	Generation uint64
	Bundle     *dashboard.Bundle
	Err        error
}

// Server is the preview server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	notifier *Notifier
	registry *prometheus.Registry
	builds   *prometheus.CounterVec

	generation atomic.Uint64

	mu    sync.RWMutex
	state Snapshot
}

// New creates a preview server.
func New(cfg Config) (*Server, error) {
	if cfg.Build == nil {
		return nil, errors.New("server requires a build function")
	}
	if cfg.SiteDir == "" {
		cfg.SiteDir = "."
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	builds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadlens",
		Name:      "builds_total",
		Help:      "Dashboard builds by result (ok, error, stale).",
	}, []string{"result"})
	if err := reg.Register(builds); err != nil {
		return nil, fmt.Errorf("failed to register build metrics: %w", err)
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		notifier: NewNotifier(),
		registry: reg,
		builds:   builds,
	}, nil
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Snapshot returns the last committed build.
func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Rebuild runs a build under a new generation and commits the result only
// if no later build started meanwhile. It reports whether it committed.
func (s *Server) Rebuild(ctx context.Context) bool {
	gen := s.generation.Add(1)
	s.logger.Debug("rebuilding dashboard", "generation", gen)

	bundle, err := s.cfg.Build(ctx)
	if err != nil && ctx.Err() != nil {
		return false
	}
	return s.commit(gen, bundle, err)
}

func (s *Server) commit(gen uint64, bundle *dashboard.Bundle, err error) bool {
	s.mu.Lock()
	if gen != s.generation.Load() || gen <= s.state.Generation {
		s.mu.Unlock()
		s.builds.WithLabelValues("stale").Inc()
		s.logger.Debug("discarding stale build", "generation", gen)
		return false
	}
	s.state = Snapshot{Generation: gen, Bundle: bundle, Err: err}
	s.mu.Unlock()

	if err != nil {
		s.builds.WithLabelValues("error").Inc()
		s.logger.Error("dashboard build failed", "generation", gen, "error", err)
	} else {
		s.builds.WithLabelValues("ok").Inc()
		s.logger.Info("dashboard built",
			"generation", gen,
			"datasets", len(bundle.Datasets),
			"diagnostics", len(bundle.Diagnostics))
	}
	s.notifier.Broadcast(gen)
	return true
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("starting preview server",
		"addr", fmt.Sprintf("http://localhost:%d", s.cfg.Port),
		"site_dir", s.cfg.SiteDir)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.Rebuild(egctx)
		return nil
	})

	if s.cfg.Watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down preview server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
