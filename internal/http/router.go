package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(h *Handlers, ingestLimiter *rate.Limiter, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(WithLogging(log))
	r.Use(middleware.Recoverer)

	r.With(WithRateLimit(ingestLimiter)).Post("/items", h.postItem)
	r.Get("/items/{sourceId}/{itemId}", h.getItem)
	r.Get("/items/{sourceId}/{itemId}/events", h.getHistory)
	r.Get("/sources/{sourceId}/hashes", h.getHashes)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
