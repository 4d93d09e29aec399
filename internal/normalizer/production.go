package normalizer

import (
	"context"
	"fmt"
	"math"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/pkg/logging"
)

func domainProducer(domain Domain) (models.ProducerType, error) {
	switch domain {
	case DomainProductionSolar:
		return models.Solar, nil
	case DomainProductionWind:
		return models.Wind, nil
	case DomainProductionHydro:
		return models.Hydro, nil
	}
	return "", fmt.Errorf("%q is not a production domain", domain)
}

// productionSource finds the column carrying production values, preferring
// the producer's own column name.
func productionSource(t *dataset.Table, p models.ProducerType) string {
	if t.Has(p.ProductionColumn()) {
		return p.ProductionColumn()
	}
	for _, other := range models.AllProducers {
		if t.Has(other.ProductionColumn()) {
			return other.ProductionColumn()
		}
	}
	if t.Has(models.TargetColumn) {
		return models.TargetColumn
	}
	return ""
}

func (n *Normalizer) cleanProduction(ctx context.Context, t *dataset.Table, domain Domain, report *Report) error {
	producer, err := domainProducer(domain)
	if err != nil {
		return err
	}
	if err := n.normalizeDate(ctx, t, domain, models.DateColumn, report); err != nil {
		return err
	}

	src := productionSource(t, producer)
	if src == "" {
		return &dataset.SchemaError{
			Table:   string(domain),
			Column:  producer.ProductionColumn(),
			Message: "no production column",
		}
	}
	t.Rename(src, models.TargetColumn)
	if failed := t.ToNumber(models.TargetColumn); failed > 0 {
		n.logger.Warn(ctx, "[NORMALIZE_COERCE] Non numeric production values", logging.Fields{
			"domain": domain,
			"count":  failed,
			"stage":  "COERCE",
		})
	}
	t.Select(models.DateColumn, models.TargetColumn)

	prod := t.Column(models.TargetColumn)
	missing, negative := 0, 0
	t.Filter(func(i int) bool {
		v := prod.Float(i)
		switch {
		case math.IsNaN(v):
			missing++
			return false
		case v < 0:
			negative++
			return false
		}
		return true
	})
	report.drop("missing_production", missing)
	report.drop("negative_production", negative)
	if missing+negative > 0 {
		n.logger.Warn(ctx, "[NORMALIZE_PRODUCTION] Invalid production rows removed", logging.Fields{
			"domain":   domain,
			"missing":  missing,
			"negative": negative,
			"stage":    "OUTLIERS",
		})
	}

	n.dedupAndSort(ctx, t, report)
	return nil
}

// rawProduction keeps the source column names. Hydro production publishes its
// date as date_obs_elab to line up with the raw Hubeau table.
func (n *Normalizer) rawProduction(ctx context.Context, t *dataset.Table, domain Domain, report *Report) error {
	producer, err := domainProducer(domain)
	if err != nil {
		return err
	}
	dateCol := models.DateColumn
	if producer == models.Hydro {
		dateCol = "date_obs_elab"
	}
	if err := n.normalizeDate(ctx, t, domain, dateCol, report); err != nil {
		return err
	}
	if src := productionSource(t, producer); src != "" {
		t.Select(dateCol, src)
	}
	return nil
}
