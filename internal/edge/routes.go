package edge

import (
	"github.com/go-chi/chi/v5"

	"github.com/bitriver/edge/internal/observability/metrics"
)

// registerRoutes wires the exact paths of spec.md §4.7, plus a /metrics
// endpoint for Prometheus scraping.
func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/{org}/{room}.m3u8", s.handleRoomPlaylist)
	r.Get("/{org}/{room}.jpg", s.handleRoomScreenshot)
	r.Get("/{org}/{room}/{session}/{rendition}.m3u8", s.handleRenditionPlaylist)
	r.Get("/{org}/{room}/{media}.mp4", s.handleMedia)
	r.Get("/{org}/{room}/{screenshot}.jpg", s.handleScreenshot)
	r.Handle("/metrics", metrics.Handler())
}
