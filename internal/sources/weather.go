package sources

import (
	"context"
	"time"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/normalizer"
	"energy-forecast/internal/upstream"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// WeatherFetcher is the Open-Meteo surface used by the weather sources.
type WeatherFetcher interface {
	Forecast(ctx context.Context, lat, lon float64, vars []string) (*dataset.Table, error)
	Archive(ctx context.Context, lat, lon float64, start, end time.Time, vars []string) (*dataset.Table, error)
}

// WeatherSource loads daily weather for one site.
type WeatherSource struct {
	handler
	fetcher   WeatherFetcher
	latitude  float64
	longitude float64
	variables []string
}

// NewSolarSource creates the solar weather source.
func NewSolarSource(fetcher WeatherFetcher, lat, lon float64, norm *normalizer.Normalizer, logger logging.Logger, m *metrics.Collector) *WeatherSource {
	return &WeatherSource{
		handler:   handler{name: "solar", domain: normalizer.DomainSolar, normalizer: norm, logger: logger, metrics: m},
		fetcher:   fetcher,
		latitude:  lat,
		longitude: lon,
		variables: upstream.SolarVariables,
	}
}

// NewWindSource creates the wind weather source.
func NewWindSource(fetcher WeatherFetcher, lat, lon float64, norm *normalizer.Normalizer, logger logging.Logger, m *metrics.Collector) *WeatherSource {
	return &WeatherSource{
		handler:   handler{name: "wind", domain: normalizer.DomainWind, normalizer: norm, logger: logger, metrics: m},
		fetcher:   fetcher,
		latitude:  lat,
		longitude: lon,
		variables: upstream.WindVariables,
	}
}

func (s *WeatherSource) Load(ctx context.Context, w Window) (*dataset.Table, error) {
	started := time.Now()
	fields := logging.Fields{"source": s.name, "forecast": w.Forecast, "stage": "FETCH"}

	if w.Forecast {
		s.logger.Info(ctx, "[FETCH_START] Fetching weather forecast", fields)
		t, err := s.fetcher.Forecast(ctx, s.latitude, s.longitude, s.variables)
		if err != nil {
			return s.degrade(ctx, "time", err), nil
		}
		return s.fetched(ctx, t, started), nil
	}

	start, end, err := w.bounds()
	if err != nil {
		return nil, err
	}
	fields["start"] = start.Format(time.DateOnly)
	fields["end"] = end.Format(time.DateOnly)
	s.logger.Info(ctx, "[FETCH_START] Fetching weather history", fields)

	t, err := s.fetcher.Archive(ctx, s.latitude, s.longitude, start, end, s.variables)
	if err != nil {
		return s.degrade(ctx, "time", err), nil
	}
	return s.fetched(ctx, t, started), nil
}
