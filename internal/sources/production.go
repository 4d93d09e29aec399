package sources

import (
	"context"
	"fmt"
	"os"
	"time"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/internal/normalizer"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// ProductionSource reads a producer's local production log. The window is
// ignored: the whole file is loaded every time.
type ProductionSource struct {
	handler
	producer models.ProducerType
	path     string
}

// NewProductionSource creates the CSV source for producer.
func NewProductionSource(producer models.ProducerType, path string, norm *normalizer.Normalizer, logger logging.Logger, m *metrics.Collector) *ProductionSource {
	return &ProductionSource{
		handler: handler{
			name:       producer.ProductionDataset(),
			domain:     normalizer.ProductionDomain(producer),
			normalizer: norm,
			logger:     logger,
			metrics:    m,
		},
		producer: producer,
		path:     path,
	}
}

// Producer returns the producer type of the log.
func (s *ProductionSource) Producer() models.ProducerType {
	return s.producer
}

func (s *ProductionSource) Load(ctx context.Context, _ Window) (*dataset.Table, error) {
	started := time.Now()
	s.logger.Info(ctx, "[FETCH_START] Reading production log", logging.Fields{
		"source": s.name,
		"path":   s.path,
		"stage":  "FETCH",
	})

	f, err := os.Open(s.path)
	if err != nil {
		return s.degrade(ctx, models.DateColumn, fmt.Errorf("open production log: %w", err)), nil
	}
	defer f.Close()

	t, err := dataset.ReadCSV(f, models.DateColumn)
	if err != nil {
		return s.degrade(ctx, models.DateColumn, err), nil
	}
	return s.fetched(ctx, t, started), nil
}
