package handlers

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"energy-forecast/internal/models"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/services"
	"energy-forecast/pkg/logging"
)

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"kwh": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"pct": func(v float64) string { return strconv.FormatFloat(v*100, 'f', 1, 64) + " %" },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Energy Forecast Dashboard</title>
    <style>
        body { font-family: sans-serif; margin: 2rem; color: #222; }
        table { border-collapse: collapse; margin-bottom: 2rem; }
        th, td { border: 1px solid #ccc; padding: .4rem .8rem; text-align: left; }
        .ok { color: #1a7f37; } .ko { color: #cf222e; }
    </style>
</head>
<body>
    <h1>Energy Forecast Dashboard</h1>
    <p>Generated {{.Generated.Format "2006-01-02 15:04:05 MST"}}</p>
    <table>
        <tr><th>Producer</th><th>Model</th><th>Scaler</th><th>Forecast days</th><th>Total kWh</th><th>Avg daily kWh</th><th>Capacity factor</th></tr>
        {{range .Producers}}
        <tr>
            <td>{{.Producer}}</td>
            {{if .Model.Loaded}}<td class="ok">{{.Model.ModelType}}</td>{{else}}<td class="ko">not loaded</td>{{end}}
            <td>{{if .Model.HasScaler}}yes{{else}}no{{end}}</td>
            <td>{{if .Forecast.Available}}{{.Forecast.Days}}{{else}}<span class="ko">none</span>{{end}}</td>
            {{if .Stats}}
            <td>{{kwh .Stats.TotalKWh}}</td><td>{{kwh .Stats.AverageDailyKWh}}</td><td>{{pct .Stats.CapacityFactor}}</td>
            {{else}}
            <td colspan="3" class="ko">{{.StatsError}}</td>
            {{end}}
        </tr>
        {{end}}
    </table>
    <p><a href="/api/docs">API documentation</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>`))

type dashboardRow struct {
	Producer   models.ProducerType
	Model      prediction.ModelStatus
	Forecast   prediction.Availability
	Stats      *services.ProducerStatistics
	StatsError string
}

type dashboardData struct {
	Generated time.Time
	Producers []dashboardRow
}

// Dashboard handles GET /dashboard
func (h *EnergyHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := h.forecasts.Status(ctx)

	data := dashboardData{Generated: status.Timestamp}
	for _, p := range models.AllProducers {
		row := dashboardRow{
			Producer: p,
			Model:    status.ModelsStatus[p],
			Forecast: status.ForecastAvailability[p],
		}
		stats, err := h.stats.Statistics(ctx, p, nil, nil)
		if err != nil {
			row.StatsError = "no production data"
		} else {
			row.Stats = stats
		}
		data.Producers = append(data.Producers, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		h.logger.Error(ctx, "[DASHBOARD_RENDER_ERROR] Failed to render dashboard", logging.Fields{}, err)
	}
}
