package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"energy-forecast/internal/models"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/services"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// HealthChecker reports whether the store answers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EnergyHandler serves predictions, forecasts and producer statistics.
type EnergyHandler struct {
	store     HealthChecker
	registry  *prediction.Registry
	forecasts *prediction.ForecastPredictor
	stats     *services.StatisticsService
	logger    logging.Logger
	metrics   *metrics.Collector
}

// NewEnergyHandler creates a new energy handler
func NewEnergyHandler(
	store HealthChecker,
	registry *prediction.Registry,
	forecasts *prediction.ForecastPredictor,
	stats *services.StatisticsService,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) *EnergyHandler {
	return &EnergyHandler{
		store:     store,
		registry:  registry,
		forecasts: forecasts,
		stats:     stats,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Code    int    `json:"code"`
}

// PredictionResponse is the body of a successful POST /predict/{producer}.
type PredictionResponse struct {
	ProducerType  models.ProducerType `json:"producer_type"`
	PredictionKWh float64             `json:"prediction_kwh"`
	Status        string              `json:"status"`
}

// ForecastResponse is the body of GET /forecast/{producer}.
type ForecastResponse struct {
	ProducerType models.ProducerType     `json:"producer_type"`
	Predictions  []prediction.Prediction `json:"predictions"`
	Count        int                     `json:"count"`
}

// Index handles GET /
func (h *EnergyHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{
		"message": "Renewable energy production forecast API",
		"endpoints": map[string]string{
			"solar":         "/predict/solar",
			"wind":          "/predict/wind",
			"hydro":         "/predict/hydro",
			"status":        "/status",
			"health":        "/health",
			"models_status": "/models/status",
			"forecast":      "/forecast/{producer}",
			"forecast_all":  "/forecast/all",
			"statistics":    "/producers/{producer}/statistics",
			"dashboard":     "/dashboard",
			"docs":          "/api/docs",
			"metrics":       "/metrics",
		},
	}, http.StatusOK)
}

// Status handles GET /status
func (h *EnergyHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"status": "Ok", "message": "API operational"}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *EnergyHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})

	if err := h.store.HealthCheck(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK_FAILED] Store is unhealthy", logging.Fields{}, err)
		h.sendJSON(w, map[string]string{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, http.StatusServiceUnavailable)
		return
	}

	h.sendJSON(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// producer resolves the {producer} path variable, answering 404 when unknown.
func (h *EnergyHandler) producer(w http.ResponseWriter, r *http.Request) (models.ProducerType, bool) {
	p, err := models.ParseProducerType(mux.Vars(r)["producer"])
	if err != nil {
		h.metrics.RecordAPIError("unknown_producer", r.URL.Path)
		h.sendError(w, "unknown producer type", err.Error(), http.StatusNotFound)
		return "", false
	}
	return p, true
}

// Predict handles POST /predict/{producer}
func (h *EnergyHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	producer, ok := h.producer(w, r)
	if !ok {
		return
	}

	var features map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&features); err != nil || features == nil {
		detail := "request body must be a JSON object of numeric features"
		if err != nil {
			detail = err.Error()
		}
		h.metrics.RecordPrediction(string(producer), "invalid")
		h.sendError(w, "invalid request body", detail, http.StatusUnprocessableEntity)
		return
	}

	predictor, err := h.registry.Predictor(producer)
	if err != nil {
		h.logger.Error(ctx, "[API_PREDICT_ERROR] Model not loaded", logging.Fields{"producer": producer}, err)
		h.metrics.RecordPrediction(string(producer), "error")
		h.metrics.RecordAPIError("model_not_loaded", "/predict")
		h.sendError(w, "prediction error", err.Error(), http.StatusInternalServerError)
		return
	}

	value, err := predictor.Predict(features)
	if err != nil {
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			h.metrics.RecordPrediction(string(producer), "invalid")
			h.sendError(w, "invalid features", validation.Message, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error(ctx, "[API_PREDICT_ERROR] Prediction failed", logging.Fields{"producer": producer}, err)
		h.metrics.RecordPrediction(string(producer), "error")
		h.metrics.RecordAPIError("internal_error", "/predict")
		h.sendError(w, "prediction error", err.Error(), http.StatusInternalServerError)
		return
	}

	h.metrics.RecordPrediction(string(producer), "ok")
	h.sendJSON(w, PredictionResponse{ProducerType: producer, PredictionKWh: value, Status: "success"}, http.StatusOK)
}

// ModelsStatus handles GET /models/status
func (h *EnergyHandler) ModelsStatus(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{"models_status": h.registry.Status()}, http.StatusOK)
}

// Forecast handles GET /forecast/{producer}
func (h *EnergyHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	producer, ok := h.producer(w, r)
	if !ok {
		return
	}
	preds := h.forecasts.Predict(r.Context(), producer)
	h.sendJSON(w, ForecastResponse{ProducerType: producer, Predictions: preds, Count: len(preds)}, http.StatusOK)
}

// ForecastAll handles GET /forecast/all
func (h *EnergyHandler) ForecastAll(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.forecasts.PredictAll(r.Context()), http.StatusOK)
}

// ForecastStatus handles GET /forecast/status
func (h *EnergyHandler) ForecastStatus(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.forecasts.Status(r.Context()), http.StatusOK)
}

// Statistics handles GET /producers/{producer}/statistics
func (h *EnergyHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	producer, ok := h.producer(w, r)
	if !ok {
		return
	}

	var start, end *time.Time
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			h.sendError(w, "invalid start_date format, expected YYYY-MM-DD", err.Error(), http.StatusBadRequest)
			return
		}
		start = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			h.sendError(w, "invalid end_date format, expected YYYY-MM-DD", err.Error(), http.StatusBadRequest)
			return
		}
		end = &t
	}

	stats, err := h.stats.Statistics(ctx, producer, start, end)
	if err != nil {
		var validation *models.ValidationError
		var notFound *repository.NotFoundError
		switch {
		case errors.As(err, &validation):
			h.sendError(w, "invalid period", validation.Message, http.StatusBadRequest)
		case errors.As(err, &notFound):
			h.sendError(w, "no production data", err.Error(), http.StatusNotFound)
		default:
			h.logger.Error(ctx, "[API_GET_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
				"producer": producer,
			}, err)
			h.metrics.RecordAPIError("internal_error", "/producers/statistics")
			h.sendError(w, "failed to retrieve statistics", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.sendJSON(w, stats, http.StatusOK)
}

// sendJSON sends a JSON response
func (h *EnergyHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *EnergyHandler) sendError(w http.ResponseWriter, message, detail string, statusCode int) {
	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Detail:  detail,
		Code:    statusCode,
	}, statusCode)
}

// RegisterRoutes registers all API routes
func (h *EnergyHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/status", h.Status).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/predict/{producer}", h.Predict).Methods("POST")
	router.HandleFunc("/models/status", h.ModelsStatus).Methods("GET")
	router.HandleFunc("/forecast/all", h.ForecastAll).Methods("GET")
	router.HandleFunc("/forecast/status", h.ForecastStatus).Methods("GET")
	router.HandleFunc("/forecast/{producer}", h.Forecast).Methods("GET")
	router.HandleFunc("/producers/{producer}/statistics", h.Statistics).Methods("GET")
	router.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
}
