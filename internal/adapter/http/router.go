package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fx-rate-cache/internal/metrics"
	"fx-rate-cache/pkg/logger"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Router struct {
	handler  *Handler
	log      *logger.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	health   HealthChecker
}

// NewRouter builds the HTTP surface. health may be nil, in which case
// /health only reports that the process is up.
func NewRouter(handler *Handler, log *logger.Logger, metrics *metrics.Metrics, gatherer prometheus.Gatherer, health HealthChecker) *Router {
	return &Router{
		handler:  handler,
		log:      log,
		metrics:  metrics,
		gatherer: gatherer,
		health:   health,
	}
}

func (r *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		crw := &customResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(crw, req)

		path := req.URL.Path
		if route := mux.CurrentRoute(req); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		if path != "/metrics" {
			duration := time.Since(start).Seconds()
			r.metrics.HTTPRequestDuration.WithLabelValues(path, req.Method).Observe(duration)
			r.metrics.HTTPRequestsTotal.WithLabelValues(path, req.Method, strconv.Itoa(crw.statusCode/100)+"xx").Inc()
		}

		r.log.Info("HTTP request",
			"method", req.Method,
			"path", req.URL.Path,
			"query", req.URL.RawQuery,
			"status", crw.statusCode,
			"duration", time.Since(start),
			"remote_addr", req.RemoteAddr,
			"user_agent", req.UserAgent(),
		)
	})
}

type customResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (crw *customResponseWriter) WriteHeader(code int) {
	crw.statusCode = code
	crw.ResponseWriter.WriteHeader(code)
}

func (r *Router) SetupRoutes() http.Handler {
	root := mux.NewRouter()

	api := root.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rates", r.handler.GetRateHandler).Methods(http.MethodGet)
	api.HandleFunc("/rates/xuid", r.handler.GetRateByXuidHandler).Methods(http.MethodGet)
	api.HandleFunc("/asof", r.handler.GetValueAsOfHandler).Methods(http.MethodPost)
	api.HandleFunc("/cache", r.handler.DisplayCacheHandler).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", r.handler.StatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/cache/check", r.handler.CheckCompatibilityHandler).Methods(http.MethodGet)
	api.HandleFunc("/cache/invalidate", r.handler.InvalidateCacheHandler).Methods(http.MethodPost)

	// Health check endpoint
	root.HandleFunc("/health", r.healthHandler).Methods(http.MethodGet)

	root.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	root.Use(r.loggingMiddleware)

	return root
}

func (r *Router) healthHandler(w http.ResponseWriter, req *http.Request) {
	if r.health != nil {
		if err := r.health.Health(req.Context()); err != nil {
			r.log.Warn("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("UNAVAILABLE"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
