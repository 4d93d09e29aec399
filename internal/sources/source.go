// Package sources pairs each upstream fetcher with the normalizer for its
// domain. A source only holds its constructor parameters; every Load is
// independent.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/normalizer"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// Window selects what a source loads. Forecast windows ignore Start and End.
type Window struct {
	Start    *time.Time
	End      *time.Time
	Forecast bool
}

// ForecastWindow selects the rolling forecast.
func ForecastWindow() Window {
	return Window{Forecast: true}
}

// HistoryWindow selects observations between start and end inclusive.
func HistoryWindow(start, end time.Time) Window {
	return Window{Start: &start, End: &end}
}

// ErrWindow is returned for history windows without bounds.
var ErrWindow = errors.New("history window needs a start and an end")

func (w Window) bounds() (time.Time, time.Time, error) {
	if w.Start == nil || w.End == nil {
		return time.Time{}, time.Time{}, ErrWindow
	}
	return *w.Start, *w.End, nil
}

// Source loads one domain and produces its raw and clean tables.
type Source interface {
	Name() string
	Domain() normalizer.Domain
	// Load fetches the upstream table. Fetch failures are logged and
	// degraded to an empty table; only an invalid window is an error.
	Load(ctx context.Context, w Window) (*dataset.Table, error)
	Clean(ctx context.Context, t *dataset.Table) (*dataset.Table, error)
	Raw(ctx context.Context, t *dataset.Table) (*dataset.Table, error)
}

// handler carries what every source shares.
type handler struct {
	name       string
	domain     normalizer.Domain
	normalizer *normalizer.Normalizer
	logger     logging.Logger
	metrics    *metrics.Collector
}

func (h *handler) Name() string              { return h.name }
func (h *handler) Domain() normalizer.Domain { return h.domain }

func (h *handler) Clean(ctx context.Context, t *dataset.Table) (*dataset.Table, error) {
	out, report, err := h.normalizer.Clean(ctx, h.domain, t)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", h.name, err)
	}
	h.logReport(ctx, report)
	return out, nil
}

func (h *handler) Raw(ctx context.Context, t *dataset.Table) (*dataset.Table, error) {
	out, report, err := h.normalizer.Raw(ctx, h.domain, t)
	if err != nil {
		return nil, fmt.Errorf("prepare raw %s: %w", h.name, err)
	}
	h.logReport(ctx, report)
	return out, nil
}

func (h *handler) logReport(ctx context.Context, r *normalizer.Report) {
	h.logger.Info(ctx, "[NORMALIZE_REPORT] Dataset normalised", logging.Fields{
		"source":       h.name,
		"path":         r.Path,
		"input_rows":   r.InputRows,
		"output_rows":  r.OutputRows,
		"duplicates":   r.Duplicates,
		"missing_left": r.MissingAfterInterpolation,
		"dropped":      r.Dropped,
		"stage":        "NORMALIZE",
	})
}

// degrade logs a fetch failure and returns an empty table keyed on key.
func (h *handler) degrade(ctx context.Context, key string, err error) *dataset.Table {
	h.logger.Error(ctx, "[FETCH_FAILED] Upstream fetch failed, continuing with an empty table", logging.Fields{
		"source": h.name,
		"stage":  "FETCH",
	}, err)
	h.metrics.RecordFetch(h.name, "failure")
	return dataset.New(key)
}

func (h *handler) fetched(ctx context.Context, t *dataset.Table, started time.Time) *dataset.Table {
	outcome := "success"
	if t.Empty() {
		outcome = "empty"
	}
	h.metrics.RecordFetch(h.name, outcome)
	h.logger.Info(ctx, "[FETCH_SUCCESS] Upstream data fetched", logging.Fields{
		"source":      h.name,
		"rows":        t.Len(),
		"duration_ms": time.Since(started).Milliseconds(),
		"stage":       "FETCH",
	})
	return t
}
