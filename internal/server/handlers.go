package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GenerationHeader carries the build generation on /api/dashboard.
const GenerationHeader = "X-Roadlens-Generation"

// ErrorResponse is the body returned while no usable bundle exists.
type ErrorResponse struct {
	Status      string `json:"status"`
	Generation  uint64 `json:"generation"`
	Stage       string `json:"stage,omitempty"`
	Message     string `json:"message,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Handler returns the HTTP handler for the preview server.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.logRequests,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.Compress(5)).Get("/dashboard", s.handleDashboard)
		r.Get("/events", s.handleEvents)
		r.Post("/rebuild", s.handleRebuild)
	})

	r.Handle("/*", http.FileServer(http.Dir(s.cfg.SiteDir)))
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	snap := s.Snapshot()
	w.Header().Set(GenerationHeader, strconv.FormatUint(snap.Generation, 10))

	switch {
	case snap.Err != nil:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse(snap))
	case snap.Bundle == nil:
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Status: "building"})
	default:
		writeJSON(w, http.StatusOK, snap.Bundle)
	}
}

func errorResponse(snap Snapshot) ErrorResponse {
	resp := ErrorResponse{
		Status:     "error",
		Generation: snap.Generation,
		Error:      snap.Err.Error(),
	}
	var de *dashboard.Error
	if errors.As(snap.Err, &de) {
		resp.Stage = string(de.Stage)
		resp.Message = de.Message
		resp.Remediation = de.Remediation
	}
	return resp
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	committed := s.Rebuild(r.Context())
	snap := s.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"committed":  committed,
		"generation": snap.Generation,
	})
}

// handleEvents streams one "update" event per committed generation.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	_, _ = fmt.Fprintf(w, "event: ready\ndata: %d\n\n", s.Snapshot().Generation)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case gen := <-ch:
			_, _ = fmt.Fprintf(w, "event: update\ndata: %d\n\n", gen)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
