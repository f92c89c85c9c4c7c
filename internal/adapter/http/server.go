package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/traffic-incident-etl/internal/analytics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// DashboardService is the query surface the API exposes.
type DashboardService interface {
	sharedobs.ReadinessChecker
	Cities(ctx context.Context) (all, defaults []string, err error)
	Dashboard(ctx context.Context, q analytics.Query) (analytics.Dashboard, error)
}

// Server exposes the dashboard API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	svc        DashboardService
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	rps   float64
	burst int
}

// WithRateLimit caps /api/v1 traffic at rps requests per second with the
// given burst. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *serverOptions) {
		o.rps = rps
		o.burst = burst
	}
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, svc DashboardService, logger *slog.Logger, opts ...Option) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/cities", s.handleCities)
	api.HandleFunc("GET /api/v1/dashboard", s.handleDashboard)
	api.HandleFunc("GET /api/v1/incidents", s.handleIncidents)

	var apiHandler http.Handler = api
	if o.rps > 0 {
		apiHandler = rateLimit(rate.NewLimiter(rate.Limit(o.rps), max(o.burst, 1)), logger, apiHandler)
	}
	mux.Handle("/api/v1/", logRequests(logger, apiHandler))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
