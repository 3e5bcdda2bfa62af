// Package server exposes mnemo over HTTP: the MCP streamable-HTTP endpoint
// plus the operational endpoints (liveness, root info, Prometheus metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// context driving [Server.Run] is cancelled.
const shutdownTimeout = 10 * time.Second

// Config carries the listen address and the identity reported on the root
// endpoint.
type Config struct {
	// Addr is the host:port the server listens on.
	Addr string

	// Version is the build version reported by GET /.
	Version string

	// Backend names the active vector-store backend reported by GET /.
	Backend string
}

// Server serves the MCP endpoint and the operational HTTP surface.
type Server struct {
	cfg  Config
	http *http.Server
}

// New builds the HTTP mux. The mcpHandler is mounted under /memory; the MCP
// SDK routes the streamable-HTTP session protocol beneath it.
func New(cfg Config, mcpHandler http.Handler) *Server {
	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.Handle("/memory", mcpHandler)
	mux.Handle("/memory/", mcpHandler)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full HTTP handler, exposed for in-process testing.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run listens until ctx is cancelled, then drains in-flight requests within
// [shutdownTimeout]. Returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ── Endpoint handlers ────────────────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"service": "mnemo",
		"version": s.cfg.Version,
		"backend": s.cfg.Backend,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
