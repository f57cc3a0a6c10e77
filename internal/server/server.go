// Package server exposes the monitoring state over HTTP: fleet status,
// on-demand scans, Wake-on-LAN, and Prometheus metrics. It only reads the
// state store and delegates to the scan orchestrator; all probing happens in
// the fleet package.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/internal/fleet"
	"github.com/HerbHall/lanwarden/pkg/models"
)

// Scanner triggers on-demand scan cycles.
type Scanner interface {
	TriggerScan(ctx context.Context) (*models.FleetSnapshot, error)
}

// WakeSender sends Wake-on-LAN magic packets.
type WakeSender interface {
	Send(ctx context.Context, mac, broadcast string) error
}

// Server is the LanWarden HTTP server.
type Server struct {
	httpServer *http.Server
	store      *fleet.StateStore
	scanner    Scanner
	wake       WakeSender
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server reading from store and delegating scans to scanner.
// gatherer may be nil to disable the /metrics endpoint.
func New(addr string, store *fleet.StateStore, scanner Scanner, wake WakeSender, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:   store,
		scanner: scanner,
		wake:    wake,
		logger:  logger,
		mux:     mux,
	}

	s.registerRoutes(gatherer)
	return s
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/v1/scan", s.handleScanNow)
	s.mux.HandleFunc("POST /api/v1/wol", s.handleWake)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
