package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/metrics"
	"github.com/empresamix/mixbi/internal/pipeline"
	"github.com/empresamix/mixbi/internal/repository"
)

// Deps are the collaborators the router serves. Breakers and Metrics are
// optional.
type Deps struct {
	Pipeline *pipeline.Service
	FetchLog *repository.FetchLogRepo
	Breakers BreakerReporter
	Metrics  *metrics.Collector
	Log      *zap.Logger
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handlers{
		pipeline: d.Pipeline,
		fetchLog: d.FetchLog,
		breakers: d.Breakers,
		log:      log.Named("api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Get("/healthz", h.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Customer segmentation.
		r.Get("/rfv", h.GetRFV)

		// Treemaps.
		r.Get("/treemaps/options", h.GetTreemapOptions)
		r.Get("/treemaps/territory", h.GetTerritoryTreemap)
		r.Get("/treemaps/product-mix", h.GetProductMixTreemap)

		// Production funnel.
		r.Get("/kpis/production", h.GetProductionKPIs)
		r.Get("/orders/status", h.GetOrderStatus)

		// Fetch log.
		r.Get("/fetches", h.ListFetches)
		r.Get("/fetches/summary", h.GetFetchSummary)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
