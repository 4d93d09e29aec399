package normalizer

import (
	"context"
	"fmt"
	"math"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/pkg/logging"
)

const (
	ShortwaveMJ  = "shortwave_radiation_sum"
	ShortwaveKWh = "shortwave_radiation_sum_kwh_m2"
	Sunshine     = "sunshine_duration"
	Daylight     = "daylight_duration"
)

var solarColumns = []string{
	models.DateColumn,
	"temperature_2m_max",
	"temperature_2m_min",
	"temperature_2m_mean",
	ShortwaveMJ,
	ShortwaveKWh,
	Sunshine,
	Daylight,
	"cloud_cover_mean",
	"relative_humidity_2m_mean",
	"precipitation_sum",
	"wind_speed_10m_mean",
}

// solarRawColumns is the stable column set of raw solar tables: source names,
// no converted radiation.
var solarRawColumns = []string{
	models.DateColumn,
	"temperature_2m_max",
	"temperature_2m_min",
	"temperature_2m_mean",
	ShortwaveMJ,
	Sunshine,
	Daylight,
	"cloud_cover_mean",
	"relative_humidity_2m_mean",
	"precipitation_sum",
	"wind_speed_10m_mean",
}

var solarRules = []rangeRule{
	{column: "temperature_2m_max", min: -20, max: 50},
	{column: "temperature_2m_min", min: -30, max: 40},
	{column: ShortwaveMJ, min: 0, max: 35},
	{column: "cloud_cover_mean", min: 0, max: 100},
	{column: "relative_humidity_2m_mean", min: 0, max: 100},
	{column: "precipitation_sum", min: 0, max: math.Inf(1), drop: true, reason: "negative_precipitation"},
	{column: "wind_speed_10m_mean", min: 0, max: math.Inf(1), drop: true, reason: "negative_wind_speed"},
}

var windColumns = []string{
	models.DateColumn,
	"wind_speed_10m_max",
	"wind_gusts_10m_max",
	"wind_direction_10m_dominant",
	"wind_gusts_10m_mean",
	"temperature_2m_mean",
	"surface_pressure_mean",
	"cloud_cover_mean",
}

var windRules = []rangeRule{
	{column: "wind_speed_10m_max", min: 0, max: 150, drop: true, reason: "wind_speed_out_of_range"},
	{column: "wind_gusts_10m_max", min: 0, max: math.Inf(1), drop: true, reason: "negative_wind_speed"},
	{column: "wind_gusts_10m_mean", min: 0, max: math.Inf(1), drop: true, reason: "negative_wind_speed"},
	{column: "wind_direction_10m_dominant", min: 0, max: 360, maxExclusive: true, drop: true, reason: "direction_out_of_range"},
	{column: "surface_pressure_mean", min: 950, max: 1050, drop: true, reason: "pressure_out_of_range"},
	{column: "cloud_cover_mean", min: 0, max: 100},
}

func (n *Normalizer) cleanSolar(ctx context.Context, t *dataset.Table, report *Report) error {
	if err := n.normalizeDate(ctx, t, DomainSolar, models.DateColumn, report); err != nil {
		return err
	}
	t.Select(solarColumns...)
	for _, c := range solarColumns[1:] {
		t.ToNumber(c)
	}

	n.dedupAndSort(ctx, t, report)
	n.interpolate(ctx, t, report)

	alreadyConverted := t.Units == dataset.UnitsCanonical || (t.Has(ShortwaveKWh) && !t.Has(ShortwaveMJ))
	if alreadyConverted {
		// a canonical table never carries the MJ column
		t.Drop(ShortwaveMJ)
		n.applyRules(ctx, t, kwhRules(solarRules), report)
		n.checkSunshine(ctx, t, report)
		return nil
	}

	n.applyRules(ctx, t, solarRules, report)
	n.checkSunshine(ctx, t, report)
	return n.convertSolarUnits(t, report)
}

// kwhRules rewrites the MJ radiation rule for tables already in kWh/m².
func kwhRules(rules []rangeRule) []rangeRule {
	out := make([]rangeRule, len(rules))
	copy(out, rules)
	for i, r := range out {
		if r.column == ShortwaveMJ {
			out[i].column = ShortwaveKWh
			out[i].max = r.max * MJToKWh
		}
	}
	return out
}

// checkSunshine flags days where sunshine exceeds daylight. Logged only.
func (n *Normalizer) checkSunshine(ctx context.Context, t *dataset.Table, report *Report) {
	sun, daylight := t.Column(Sunshine), t.Column(Daylight)
	if sun == nil || daylight == nil {
		return
	}
	count := 0
	for i := 0; i < t.Len(); i++ {
		if sun.Float(i) > daylight.Float(i) {
			count++
		}
	}
	if count > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d days with sunshine longer than daylight", count))
		n.logger.Warn(ctx, "[NORMALIZE_COHERENCE] Sunshine duration exceeds daylight duration", logging.Fields{
			"domain": report.Domain,
			"count":  count,
			"stage":  "OUTLIERS",
		})
	}
}

// convertSolarUnits replaces MJ/m² radiation by kWh/m² and turns durations
// from seconds into hours.
func (n *Normalizer) convertSolarUnits(t *dataset.Table, report *Report) error {
	if t.Rename(ShortwaveMJ, ShortwaveKWh) {
		convert(t.Column(ShortwaveKWh), func(v float64) float64 { return v * MJToKWh })
	}
	toHours := func(v float64) float64 { return v / SecondsPerHour }
	convert(t.Column(Sunshine), toHours)
	convert(t.Column(Daylight), toHours)

	report.Converted = true
	return nil
}

func convert(c *dataset.Column, fn func(float64) float64) {
	if c == nil || c.Kind != dataset.Number {
		return
	}
	for i := 0; i < c.Len(); i++ {
		c.Set(i, fn(c.Float(i)))
	}
}

func (n *Normalizer) cleanWind(ctx context.Context, t *dataset.Table, report *Report) error {
	if err := n.normalizeDate(ctx, t, DomainWind, models.DateColumn, report); err != nil {
		return err
	}
	t.Select(windColumns...)
	for _, c := range windColumns[1:] {
		t.ToNumber(c)
	}

	n.dedupAndSort(ctx, t, report)
	n.interpolate(ctx, t, report)
	n.applyRules(ctx, t, windRules, report)
	return nil
}
