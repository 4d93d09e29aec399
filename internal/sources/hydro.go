package sources

import (
	"context"
	"time"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/normalizer"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// FlowFetcher is the Hubeau surface used by the hydro source.
type FlowFetcher interface {
	Observations(ctx context.Context, station string, start, end time.Time) (*dataset.Table, error)
}

// HydroSource loads daily river flows for a station. Hubeau publishes no
// forecast, so forecast windows load an empty table.
type HydroSource struct {
	handler
	fetcher FlowFetcher
	station string
}

// NewHydroSource creates the Hubeau source for station.
func NewHydroSource(fetcher FlowFetcher, station string, norm *normalizer.Normalizer, logger logging.Logger, m *metrics.Collector) *HydroSource {
	return &HydroSource{
		handler: handler{name: "hubeau", domain: normalizer.DomainHydro, normalizer: norm, logger: logger, metrics: m},
		fetcher: fetcher,
		station: station,
	}
}

func (s *HydroSource) Load(ctx context.Context, w Window) (*dataset.Table, error) {
	if w.Forecast {
		return dataset.New("date_obs_elab"), nil
	}
	start, end, err := w.bounds()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	s.logger.Info(ctx, "[FETCH_START] Fetching hydrometric observations", logging.Fields{
		"source":  s.name,
		"station": s.station,
		"start":   start.Format(time.DateOnly),
		"end":     end.Format(time.DateOnly),
		"stage":   "FETCH",
	})

	t, err := s.fetcher.Observations(ctx, s.station, start, end)
	if err != nil {
		return s.degrade(ctx, "date_obs_elab", err), nil
	}
	return s.fetched(ctx, t, started), nil
}
