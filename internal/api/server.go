// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/controller"
	"github.com/lioriz/arch-scraper/internal/metrics"
	"github.com/lioriz/arch-scraper/internal/scraper"
	"github.com/lioriz/arch-scraper/internal/sources"
)

// Server wires HTTP handlers to the job controller and the batch store.
type Server struct {
	router     chi.Router
	store      scraper.BatchStore
	registry   *sources.Registry
	controller *controller.JobController
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store scraper.BatchStore,
	registry *sources.Registry,
	jobController *controller.JobController,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		registry:   registry,
		controller: jobController,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/health", s.health)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})
	r.Get("/sources", s.getSources)

	r.Route("/architectures", func(r chi.Router) {
		r.Get("/", s.listBatches)
		r.Get("/latest", s.getLatestBatch)
		r.Get("/{batch_id}", s.getBatchByID)
		r.Get("/{batch_id}/patterns", s.getPatternsByBatchID)
	})

	r.Post("/scrape", s.triggerScrape)
	r.Get("/scrape/status", s.getScrapeStatus)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

func (s *Server) getSources(w http.ResponseWriter, _ *http.Request) {
	srcs, err := s.registry.Load()
	if err != nil {
		s.logger.Error("load sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load sources")
		return
	}
	writeJSON(w, http.StatusOK, srcs)
}

// listBatches degrades to an empty list when the store is unreachable.
func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		s.logger.Error("list batches failed", zap.Error(err))
		writeJSON(w, http.StatusOK, []scraper.Batch{})
		return
	}
	if batches == nil {
		batches = []scraper.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) getLatestBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetLatest(r.Context())
	if err != nil {
		s.respondBatchError(w, "latest", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) getBatchByID(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	b, err := s.store.GetByID(r.Context(), batchID)
	if err != nil {
		s.respondBatchError(w, batchID, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) getPatternsByBatchID(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	records, err := s.store.GetPatterns(r.Context(), batchID)
	if err != nil {
		s.respondBatchError(w, batchID, err)
		return
	}
	if records == nil {
		records = []scraper.ArchitectureRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) respondBatchError(w http.ResponseWriter, batchID string, err error) {
	if errors.Is(err, scraper.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "batch "+batchID+" not found")
		return
	}
	s.logger.Error("batch query failed", zap.String("batch_id", batchID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to retrieve batch")
}

type scrapeRequest struct {
	// Sources restricts the run to the named sources. Empty scrapes all.
	Sources []string `json:"sources"`
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if err := s.controller.StartRun(r.Context(), req.Sources); err != nil {
		if errors.Is(err, scraper.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "scraping already in progress")
			return
		}
		s.logger.Error("start scrape failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start scraping")
		return
	}
	writeJSON(w, http.StatusAccepted, scraper.RunStatus{
		Phase:   scraper.RunPhaseInProgress,
		Message: "Scraping started in background",
	})
}

func (s *Server) getScrapeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
