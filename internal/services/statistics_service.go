package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// ProducerStatistics summarises a producer's clean production log over a period.
type ProducerStatistics struct {
	ProducerType    models.ProducerType `json:"producer_type"`
	StartDate       string              `json:"start_date,omitempty"`
	EndDate         string              `json:"end_date,omitempty"`
	Days            int                 `json:"days"`
	TotalKWh        float64             `json:"total_kwh"`
	AverageDailyKWh float64             `json:"average_daily_kwh"`
	MaxKWh          float64             `json:"max_kwh"`
	MinKWh          float64             `json:"min_kwh"`
	NominalPowerKW  float64             `json:"nominal_power_kw"`
	CapacityFactor  float64             `json:"capacity_factor"`
}

// StatisticsService handles producer statistics calculations
type StatisticsService struct {
	repo    repository.TableRepository
	nominal map[models.ProducerType]float64
	logger  logging.Logger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service. nominal holds the
// installed capacity in kW of each producer.
func NewStatisticsService(repo repository.TableRepository, nominal map[models.ProducerType]float64, logger logging.Logger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		nominal: nominal,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Statistics computes production totals for producer between start and end
// inclusive. A nil bound is open. With both bounds the period length counts
// calendar days, otherwise it spans the first to the last logged day.
func (s *StatisticsService) Statistics(ctx context.Context, producer models.ProducerType, start, end *time.Time) (*ProducerStatistics, error) {
	if start != nil && end != nil && end.Before(*start) {
		return nil, &models.ValidationError{
			Field:   "end_date",
			Value:   end.Format(time.DateOnly),
			Message: "end_date must not be before start_date",
		}
	}

	table := models.CleanTable(producer.ProductionDataset())
	t, err := s.repo.Read(ctx, table, repository.ReadOptions{
		Columns: []string{models.TargetColumn},
		Start:   start,
		End:     end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	stats := &ProducerStatistics{
		ProducerType:   producer,
		NominalPowerKW: s.nominal[producer],
	}
	if start != nil {
		stats.StartDate = start.Format(time.DateOnly)
	}
	if end != nil {
		stats.EndDate = end.Format(time.DateOnly)
	}

	prod, dates := t.Column(models.TargetColumn), t.Column(models.DateColumn)
	if prod == nil || dates == nil || t.Empty() {
		return stats, nil
	}

	var first, last time.Time
	n := 0
	stats.MaxKWh, stats.MinKWh = math.Inf(-1), math.Inf(1)
	for i := 0; i < t.Len(); i++ {
		if prod.IsMissing(i) {
			continue
		}
		v := prod.Float(i)
		stats.TotalKWh += v
		stats.MaxKWh = math.Max(stats.MaxKWh, v)
		stats.MinKWh = math.Min(stats.MinKWh, v)
		if d := dates.Time(i); !d.IsZero() {
			if first.IsZero() || d.Before(first) {
				first = d
			}
			if d.After(last) {
				last = d
			}
		}
		n++
	}
	if n == 0 {
		stats.MaxKWh, stats.MinKWh = 0, 0
		return stats, nil
	}

	if start != nil && end != nil {
		stats.Days = daysBetween(*start, *end)
	} else if !first.IsZero() {
		stats.Days = daysBetween(first, last)
	} else {
		stats.Days = n
	}

	stats.AverageDailyKWh = stats.TotalKWh / float64(stats.Days)
	if capacity := stats.NominalPowerKW * 24 * float64(stats.Days); capacity > 0 {
		stats.CapacityFactor = stats.TotalKWh / capacity
	}

	s.logger.Debug(ctx, "[STATS_CALC_COMPLETE] Producer statistics calculated", logging.Fields{
		"producer": producer,
		"days":     stats.Days,
		"total":    stats.TotalKWh,
		"stage":    "COMPLETE",
	})
	return stats, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24) + 1
}
