// Package edge implements the Edge Server (spec.md §4.7): a read-mostly
// chi HTTP server that issues signed playback sessions, serves LL-HLS
// playlists backed by the Metadata Store, and streams init/part/screenshot
// bytes from the Blob Store by signed claim.
package edge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bitriver/edge/internal/logger"
	"github.com/bitriver/edge/internal/observability/metrics"
)

// Server is the Edge Server: a router plus the *http.Server it is bound to.
type Server struct {
	cfg    Config
	deps   Deps
	log    *slog.Logger
	router *chi.Mux

	httpServer *http.Server
}

// NewServer builds a Server and registers its routes. Call Start to begin
// serving.
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  logger.Logger().With("component", "edge.server"),
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.RequestID)
	router.Use(s.logRequests)
	router.Use(chimiddleware.Recoverer)
	s.registerRoutes(router)
	s.router = router

	return s
}

// Router exposes the chi router, chiefly for tests that want to drive
// requests through httptest without a live listener.
func (s *Server) Router() *chi.Mux { return s.router }

// Start runs the HTTP server until Shutdown is called or it fails.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info("starting edge server", "addr", s.cfg.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("edge server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request handled",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
		metrics.RecordEdgeRequest(routePattern(r), statusClass(ww.Status()))
	})
}

// routePattern returns the chi route pattern matched for r ("unmatched" if
// none), keeping the edge_http_requests_total label space bounded instead of
// one series per literal path (org/room ids would otherwise leak in as
// label values).
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return "unmatched"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
