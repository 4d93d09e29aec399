package handlers

import (
	"encoding/json"
	"net/http"
)

func producerParam(in string) map[string]interface{} {
	return map[string]interface{}{
		"name":        "producer",
		"in":          in,
		"description": "Producer type",
		"required":    true,
		"schema":      map[string]interface{}{"type": "string", "enum": []string{"solar", "wind", "hydro"}},
	}
}

func dateParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": "string", "format": "date"},
	}
}

func jsonResponse(description string, properties map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"type":       "object",
					"properties": properties,
				},
			},
		},
	}
}

var errorSchema = map[string]interface{}{
	"error":   map[string]string{"type": "string"},
	"message": map[string]string{"type": "string"},
	"detail":  map[string]string{"type": "string"},
	"code":    map[string]string{"type": "integer"},
}

var predictionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"date":           map[string]string{"type": "string", "format": "date"},
		"prediction_kwh": map[string]string{"type": "number"},
		"producer_type":  map[string]string{"type": "string"},
		"features":       map[string]interface{}{"type": "object", "additionalProperties": map[string]string{"type": "number"}},
		"model_type":     map[string]string{"type": "string"},
		"timestamp":      map[string]string{"type": "string", "format": "date-time"},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Energy Forecast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Energy Forecast API",
			"description": "Daily production forecasts for a solar, wind and hydro producer site",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8000", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/status": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Liveness",
					"responses": map[string]interface{}{
						"200": jsonResponse("API is running", map[string]interface{}{
							"status":  map[string]string{"type": "string"},
							"message": map[string]string{"type": "string"},
						}),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check that the table store answers",
					"responses": map[string]interface{}{
						"200": jsonResponse("Store is healthy", map[string]interface{}{"status": map[string]string{"type": "string"}}),
						"503": jsonResponse("Store is unreachable", map[string]interface{}{
							"status": map[string]string{"type": "string"},
							"error":  map[string]string{"type": "string"},
						}),
					},
				},
			},
			"/predict/{producer}": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Predict one day",
					"description": "Predict the daily production from a JSON object of feature values",
					"parameters":  []map[string]interface{}{producerParam("path")},
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"type":                 "object",
									"additionalProperties": map[string]string{"type": "number"},
								},
							},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Prediction", map[string]interface{}{
							"producer_type":  map[string]string{"type": "string"},
							"prediction_kwh": map[string]string{"type": "number"},
							"status":         map[string]string{"type": "string"},
						}),
						"404": jsonResponse("Unknown producer", errorSchema),
						"422": jsonResponse("Missing or invalid features", errorSchema),
						"500": jsonResponse("Model not loaded", errorSchema),
					},
				},
			},
			"/models/status": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Loaded models",
					"responses": map[string]interface{}{
						"200": jsonResponse("Status per producer", map[string]interface{}{
							"models_status": map[string]string{"type": "object"},
						}),
					},
				},
			},
			"/forecast/{producer}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Forecast one producer",
					"parameters": []map[string]interface{}{producerParam("path")},
					"responses": map[string]interface{}{
						"200": jsonResponse("Predictions for the stored forecast days", map[string]interface{}{
							"producer_type": map[string]string{"type": "string"},
							"predictions":   map[string]interface{}{"type": "array", "items": predictionSchema},
							"count":         map[string]string{"type": "integer"},
						}),
						"404": jsonResponse("Unknown producer", errorSchema),
					},
				},
			},
			"/forecast/all": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Forecast every producer",
					"responses": map[string]interface{}{
						"200": jsonResponse("Predictions per producer", map[string]interface{}{
							"solar":   map[string]interface{}{"type": "array", "items": predictionSchema},
							"wind":    map[string]interface{}{"type": "array", "items": predictionSchema},
							"hydro":   map[string]interface{}{"type": "array", "items": predictionSchema},
							"summary": map[string]string{"type": "object"},
						}),
					},
				},
			},
			"/forecast/status": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Forecast readiness",
					"responses": map[string]interface{}{
						"200": jsonResponse("Forecast availability and model status", map[string]interface{}{
							"forecast_availability": map[string]string{"type": "object"},
							"models_status":         map[string]string{"type": "object"},
							"ready_for_prediction":  map[string]string{"type": "boolean"},
						}),
					},
				},
			},
			"/producers/{producer}/statistics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Production statistics",
					"parameters": []map[string]interface{}{
						producerParam("path"),
						dateParam("start_date", "First day of the period (YYYY-MM-DD)"),
						dateParam("end_date", "Last day of the period (YYYY-MM-DD)"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Statistics over the period", map[string]interface{}{
							"producer_type":     map[string]string{"type": "string"},
							"days":              map[string]string{"type": "integer"},
							"total_kwh":         map[string]string{"type": "number"},
							"average_daily_kwh": map[string]string{"type": "number"},
							"max_kwh":           map[string]string{"type": "number"},
							"min_kwh":           map[string]string{"type": "number"},
							"capacity_factor":   map[string]string{"type": "number"},
						}),
						"400": jsonResponse("Invalid date or period", errorSchema),
						"404": jsonResponse("No production data", errorSchema),
					},
				},
			},
			"/dashboard": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "HTML dashboard",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Dashboard page"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
