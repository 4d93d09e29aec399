package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"energy-forecast/internal/dataset"
)

// Daily variable sets requested per producer.
var (
	SolarVariables = []string{
		"shortwave_radiation_sum",
		"cloud_cover_mean",
		"precipitation_sum",
		"temperature_2m_max",
		"temperature_2m_min",
		"temperature_2m_mean",
		"relative_humidity_2m_mean",
		"wind_speed_10m_mean",
		"sunshine_duration",
		"daylight_duration",
	}
	WindVariables = []string{
		"wind_speed_10m_max",
		"wind_gusts_10m_max",
		"wind_direction_10m_dominant",
		"wind_gusts_10m_mean",
		"temperature_2m_mean",
		"surface_pressure_mean",
		"cloud_cover_mean",
	}
)

// OpenMeteoConfig configures the Open-Meteo client.
type OpenMeteoConfig struct {
	ForecastURL  string
	ArchiveURL   string
	ForecastDays int
	Timezone     string
}

// OpenMeteo fetches daily weather series.
type OpenMeteo struct {
	base *BaseClient
	cfg  OpenMeteoConfig
}

// NewOpenMeteo creates an Open-Meteo client on top of base.
func NewOpenMeteo(base *BaseClient, cfg OpenMeteoConfig) *OpenMeteo {
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 16
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Paris"
	}
	return &OpenMeteo{base: base, cfg: cfg}
}

type openMeteoResponse struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Timezone  string           `json:"timezone"`
	Daily     map[string][]any `json:"daily"`
	Error     bool             `json:"error"`
	Reason    string           `json:"reason"`
}

// Forecast returns the daily forecast for the next ForecastDays days. The
// table is keyed on "time".
func (o *OpenMeteo) Forecast(ctx context.Context, lat, lon float64, vars []string) (*dataset.Table, error) {
	q := o.query(lat, lon, vars)
	q.Set("forecast_days", strconv.Itoa(o.cfg.ForecastDays))
	return o.fetch(ctx, o.cfg.ForecastURL, q)
}

// Archive returns observed daily values between start and end inclusive.
func (o *OpenMeteo) Archive(ctx context.Context, lat, lon float64, start, end time.Time, vars []string) (*dataset.Table, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("archive window ends (%s) before it starts (%s)", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	q := o.query(lat, lon, vars)
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))
	return o.fetch(ctx, o.cfg.ArchiveURL, q)
}

func (o *OpenMeteo) query(lat, lon float64, vars []string) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("daily", strings.Join(vars, ","))
	q.Set("timezone", o.cfg.Timezone)
	return q
}

func (o *OpenMeteo) fetch(ctx context.Context, endpoint string, q url.Values) (*dataset.Table, error) {
	var body openMeteoResponse
	if err := o.base.getJSON(ctx, endpoint+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if body.Error {
		return nil, &HTTPError{Provider: o.base.Provider(), StatusCode: 400, Message: body.Reason}
	}
	if len(body.Daily) == 0 {
		return dataset.New("time"), nil
	}
	return dataset.FromColumns("time", body.Daily)
}
