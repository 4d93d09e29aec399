package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware tags every request with an id and records request metrics
// under the matched route template.
func RequestMiddleware(logger logging.Logger, m *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := logging.WithRequestID(r.Context(), id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tpl
				}
			}
			m.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(rec.status))
			m.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

			logger.Debug(ctx, "[API_REQUEST] Request served", logging.Fields{
				"method":      r.Method,
				"endpoint":    endpoint,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}

// RecoveryMiddleware turns a handler panic into a JSON 500 answer.
func RecoveryMiddleware(h *EnergyHandler) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				h.logger.Error(r.Context(), "[API_PANIC] Handler panicked", logging.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}, err)
				h.metrics.RecordAPIError("panic", r.URL.Path)
				h.sendError(w, "internal server error", "unexpected failure while serving the request", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter wires the API routes, the metrics endpoint and the request
// middleware. gatherer may be nil to expose the default registry.
func NewRouter(h *EnergyHandler, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestMiddleware(h.logger, h.metrics), RecoveryMiddleware(h))
	h.RegisterRoutes(router)

	if gatherer == nil {
		router.Handle("/metrics", promhttp.Handler())
	} else {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.sendError(w, "route not found", r.URL.Path, http.StatusNotFound)
	})
	return router
}
