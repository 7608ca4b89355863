// Package api exposes the HTTP interface for the crawl and read services.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/crawl"
	"github.com/foodycrawl/foodycrawl/internal/foody"
	"github.com/foodycrawl/foodycrawl/internal/metrics"
	"github.com/foodycrawl/foodycrawl/internal/store/postgres"
)

// DefaultCityID is used by trigger endpoints when no city_id is supplied.
const DefaultCityID = 218

// Crawler is the pipeline surface the trigger endpoints drive.
type Crawler interface {
	FullCrawl(ctx context.Context) (crawl.Summary, error)
	CrawlCity(ctx context.Context, cityID int) (crawl.CitySummary, error)
	CrawlLocations(ctx context.Context) (crawl.Summary, error)
	BrowsingIDs(ctx context.Context, cityID int) (foody.BrowsingIDs, error)
}

// Reader serves the query endpoints from the relational store.
type Reader interface {
	ListLocations(ctx context.Context) ([]foody.Location, error)
	SearchFoods(ctx context.Context, filter postgres.FoodFilter) ([]foody.Food, int, error)
}

// Server wires HTTP handlers to the crawler and the store.
type Server struct {
	router  chi.Router
	crawler Crawler
	reader  Reader
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. reader may be nil
// when the process runs without a database, in which case the query endpoints
// report unavailable.
func NewServer(crawler Crawler, reader Reader, logger *zap.Logger) *Server {
	s := &Server{
		crawler: crawler,
		reader:  reader,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/full-crawl", s.fullCrawl)
	r.Get("/crawl-locations", s.crawlLocations)
	r.Get("/crawl-browsing-ids", s.crawlBrowsingIDs)
	r.Get("/crawl-by-city", s.crawlByCity)

	r.Get("/locations", s.listLocations)
	r.Get("/foods", s.searchFoods)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// envelope is the uniform trigger-endpoint response body. Trigger failures
// are expected operational outcomes and still answer 200; only a panic
// produces a 5xx.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fullCrawl(w http.ResponseWriter, r *http.Request) {
	summary, err := s.crawler.FullCrawl(r.Context())
	if err != nil {
		s.logger.Error("full crawl failed", zap.Error(err))
		s.writeOutcome(w, envelope{Status: "error", Message: err.Error(), Data: summary})
		return
	}
	s.writeOutcome(w, envelope{Status: "success", Message: "full crawl completed", Data: summary})
}

func (s *Server) crawlLocations(w http.ResponseWriter, r *http.Request) {
	summary, err := s.crawler.CrawlLocations(r.Context())
	if err != nil {
		s.logger.Error("locations crawl failed", zap.Error(err))
		s.writeOutcome(w, envelope{Status: "error", Message: err.Error()})
		return
	}
	s.writeOutcome(w, envelope{Status: "success", Message: "locations crawl completed", Data: summary})
}

func (s *Server) crawlBrowsingIDs(w http.ResponseWriter, r *http.Request) {
	cityID, err := cityIDParam(r, DefaultCityID)
	if err != nil {
		s.writeOutcome(w, envelope{Status: "error", Message: err.Error()})
		return
	}
	ids, err := s.crawler.BrowsingIDs(r.Context(), cityID)
	if err != nil {
		s.logger.Error("browsing ids fetch failed", zap.Int("city_id", cityID), zap.Error(err))
		s.writeOutcome(w, envelope{Status: "error", Message: err.Error()})
		return
	}
	s.writeOutcome(w, envelope{Status: "success", Message: "browsing ids fetched", Data: ids})
}

func (s *Server) crawlByCity(w http.ResponseWriter, r *http.Request) {
	cityID, err := cityIDParam(r, DefaultCityID)
	if err != nil {
		s.writeOutcome(w, envelope{Status: "error", Message: err.Error()})
		return
	}
	summary, err := s.crawler.CrawlCity(r.Context(), cityID)
	if err != nil {
		s.logger.Error("city crawl failed", zap.Int("city_id", cityID), zap.Error(err))
		s.writeOutcome(w, envelope{Status: "error", Message: err.Error()})
		return
	}
	s.writeOutcome(w, envelope{Status: "success", Message: "city crawl completed", Data: summary})
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	locations, err := s.reader.ListLocations(r.Context())
	if err != nil {
		s.logger.Error("list locations failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list locations")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"locations": locations,
		"total":     len(locations),
	})
}

func (s *Server) searchFoods(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	filter, err := foodFilterFromQuery(r)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	foods, total, err := s.reader.SearchFoods(r.Context(), filter)
	if err != nil {
		s.logger.Error("food search failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to search foods")
		return
	}
	if foods == nil {
		foods = []foody.Food{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"foods":     foods,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (s *Server) writeOutcome(w http.ResponseWriter, env envelope) {
	writeJSON(s.logger, w, http.StatusOK, env)
}

func cityIDParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("city_id")
	if raw == "" {
		return def, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, &foody.ValidationError{Record: "city_id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func foodFilterFromQuery(r *http.Request) (postgres.FoodFilter, error) {
	q := r.URL.Query()
	filter := postgres.FoodFilter{
		Query: q.Get("query"),
		Page:  1,
	}
	if raw := q.Get("city_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return postgres.FoodFilter{}, &foody.ValidationError{Record: "city_id", Reason: "must be a positive integer"}
		}
		filter.CityID = id
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page <= 0 {
			return postgres.FoodFilter{}, &foody.ValidationError{Record: "page", Reason: "must be a positive integer"}
		}
		filter.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 || size > 200 {
			return postgres.FoodFilter{}, &foody.ValidationError{Record: "page_size", Reason: "must be between 1 and 200"}
		}
		filter.PageSize = size
	}
	return filter, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
