// Package server exposes the scanner over HTTP: still images and PDFs are
// uploaded for a one-shot scan, and live camera frames are streamed over a
// WebSocket.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/session"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	factory     *session.Factory
	pool        *session.Pool
	importer    *imports.Importer
	rateLimiter *RateLimiter
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	logger      *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Factory  *session.Factory
	Importer *imports.Importer
	// Sessions bounds the number of concurrent upload scans.
	Sessions    int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	RateLimit   Limits
	Logger      *slog.Logger
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ScanResponse is returned by the upload endpoints.
type ScanResponse struct {
	Success bool             `json:"success"`
	Results []imports.Result `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// NewServer creates a new scan server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Factory == nil {
		return nil, errors.New("server: session factory is required")
	}
	if cfg.Importer == nil {
		return nil, errors.New("server: importer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 30
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}

	s := &Server{
		factory:     cfg.Factory,
		pool:        session.NewPool(cfg.Factory, cfg.Sessions),
		importer:    cfg.Importer,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		logger:      cfg.Logger,
	}
	if cfg.RateLimit.Enabled() {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit, nil)
	}
	return s, nil
}

// Close releases pooled sessions. Live connections close their own sessions.
func (s *Server) Close() error {
	s.pool.Close()
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/scan/image", s.corsMiddleware(s.rateLimitMiddleware(s.scanImageHandler)))
	mux.HandleFunc("/scan/pdf", s.corsMiddleware(s.rateLimitMiddleware(s.scanPDFHandler)))
	mux.HandleFunc("/scan/live", s.rateLimitMiddleware(s.liveWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}
