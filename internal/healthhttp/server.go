// Package healthhttp exposes a local, read-only observability surface:
// /health (per-connector JSON snapshots) and /metrics (Prometheus),
// mirroring cryptorun's interfaces/http server — local-only by default,
// request-ID middleware, structured request logging.
package healthhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/internal/connector"
)

// SourceHealth names a connector pipeline for its /health entry.
type SourceHealth struct {
	Name   string
	Health connector.Health
}

// HealthProvider returns a fresh snapshot for every running connector
// pipeline, keyed by name.
type HealthProvider func() []SourceHealth

// Config configures one health/metrics server instance.
type Config struct {
	Addr         string // default 127.0.0.1:9090
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Provider     HealthProvider
	// Registry is the Prometheus collector set this server exposes at
	// /metrics. When nil, NewServer builds a private one; callers that
	// want the same connectors/dispatchers incrementing these counters
	// (e.g. internal/supervisor) must share this Registry with them.
	Registry *Registry
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:9090"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

// Server is the local health/metrics HTTP surface.
type Server struct {
	cfg    Config
	router *mux.Router
	server *http.Server
	log    zerolog.Logger
	reg    *Registry
}

// NewServer builds a Server bound to cfg.Addr (localhost by default). It
// does not start listening until Start is called.
func NewServer(cfg Config, log zerolog.Logger) *Server {
	cfg = cfg.withDefaults()
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		log:    log.With().Str("component", "healthhttp").Logger(),
		reg:    reg,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Metrics exposes the Prometheus registry so connectors and dispatchers
// can record counters/gauges.
func (s *Server) Metrics() *Registry { return s.reg }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.reg.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Sources   map[string]healthSummary `json:"sources"`
}

type healthSummary struct {
	Status          string    `json:"status"`
	Uptime          string    `json:"uptime"`
	LastMessageTime time.Time `json:"last_message_time,omitempty"`
	ErrorCount      int64     `json:"error_count"`
	RateLimit       *struct {
		Remaining int       `json:"remaining"`
		Reset     time.Time `json:"reset"`
	} `json:"rate_limit,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Sources:   make(map[string]healthSummary),
	}

	if s.cfg.Provider != nil {
		for _, sh := range s.cfg.Provider() {
			summary := healthSummary{
				Status:     sh.Health.Status.String(),
				Uptime:     sh.Health.Uptime().String(),
				ErrorCount: sh.Health.ErrorCount,
			}
			if sh.Health.HasLastMessage {
				summary.LastMessageTime = sh.Health.LastMessageTime
			}
			if sh.Health.RateLimit.Valid {
				summary.RateLimit = &struct {
					Remaining int       `json:"remaining"`
					Reset     time.Time `json:"reset"`
				}{Remaining: sh.Health.RateLimit.Remaining, Reset: sh.Health.RateLimit.Reset}
			}
			if sh.Health.Status == connector.StatusError {
				resp.Status = "degraded"
			}
			resp.Sources[sh.Name] = summary
		}
	}

	json.NewEncoder(w).Encode(resp)
}

// Start begins serving. It blocks until the listener errors or Shutdown
// is called, at which point it returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting health/metrics server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
