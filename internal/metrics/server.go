package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/pkg/config"
)

// Server exposes the collector on a small admin listener:
//
//   - GET /metrics  - Prometheus exposition
//   - GET /healthz  - liveness probe
type Server struct {
	httpServer *http.Server
}

// NewServer wires the admin routes for c. Returns nil when metrics are
// disabled so Start and Shutdown become no-ops.
func NewServer(cfg config.MetricsConfig, c *Collector) *Server {
	if c == nil {
		return nil
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		c.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves the admin listener until Shutdown. It returns on listener
// failure; callers run it in its own goroutine.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	logger.Info("Metrics listener started", logger.Address(s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}

// Shutdown stops the admin listener, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
