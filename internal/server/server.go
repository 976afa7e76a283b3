// Package server exposes the fountain query API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/geospatial"
	"github.com/hydromap/fountains-server/internal/processing"
	"github.com/hydromap/fountains-server/internal/resilience"
)

// Server serves the fountain query API.
type Server struct {
	proc *processing.Processor
	srv  *http.Server
}

// New builds the server and its router.
func New(proc *processing.Processor, port int) *Server {
	s := &Server{proc: proc}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/fountains", s.handleFountains)
		r.Get("/fountains/essential", s.handleEssential)
		r.Get("/fountains.geojson", s.handleGeoJSON)
		r.Get("/issues", s.handleIssues)
		r.Get("/cache/stats", s.handleCacheStats)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFountains(w http.ResponseWriter, r *http.Request) {
	box, ok := bboxParam(w, r)
	if !ok {
		return
	}
	fountains, err := s.proc.FountainsInBBox(r.Context(), box)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fountains)
}

func (s *Server) handleEssential(w http.ResponseWriter, r *http.Request) {
	box, ok := bboxParam(w, r)
	if !ok {
		return
	}
	essentials, err := s.proc.EssentialInBBox(r.Context(), box)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, essentials)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	box, ok := bboxParam(w, r)
	if !ok {
		return
	}
	essentials, err := s.proc.EssentialInBBox(r.Context(), box)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processing.GeoJSON(essentials))
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	box, ok := bboxParam(w, r)
	if !ok {
		return
	}
	issues, err := s.proc.IssuesInBBox(r.Context(), box)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Stats())
}

// bboxParam parses the required bbox query parameter, writing a 400 on
// failure.
func bboxParam(w http.ResponseWriter, r *http.Request) (geospatial.BBox, bool) {
	raw := r.URL.Query().Get("bbox")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bbox query parameter is required (minLng,minLat,maxLng,maxLat)",
		})
		return geospatial.BBox{}, false
	}
	box, err := geospatial.ParseBBox(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return geospatial.BBox{}, false
	}
	return box, true
}

// writeError maps the error taxonomy to status codes: rate limits to 429,
// unavailable sources to 502, everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case resilience.IsRateLimited(err):
		status = http.StatusTooManyRequests
	case resilience.IsSourceUnavailable(err):
		status = http.StatusBadGateway
	}
	zap.L().Warn("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}
