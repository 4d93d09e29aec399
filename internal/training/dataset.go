package training

import (
	"fmt"
	"math"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
)

// trainingSet is the joined, imputed design matrix of one producer.
type trainingSet struct {
	X        [][]float64
	y        []float64
	features []string
	warnings []string
	dropped  int
}

// buildTrainingSet inner joins the feature and production tables on date,
// keeps the wanted features that exist, fills missing feature cells with the
// column mean and drops rows without a target.
func buildTrainingSet(features, production *dataset.Table, wanted []string) (*trainingSet, error) {
	joined, err := dataset.InnerJoin(features, production, models.DateColumn)
	if err != nil {
		return nil, err
	}
	if !joined.Has(models.TargetColumn) {
		return nil, &dataset.SchemaError{Table: "training", Column: models.TargetColumn, Message: "target column missing after join"}
	}
	joined.ToNumber(models.TargetColumn)

	target := joined.Column(models.TargetColumn)
	dropped := joined.Filter(func(i int) bool { return !target.IsMissing(i) })
	if joined.Empty() {
		return nil, fmt.Errorf("no dated rows shared by features and production")
	}

	set := &trainingSet{dropped: dropped}
	if dropped > 0 {
		set.warnings = append(set.warnings, fmt.Sprintf("%d rows without %s dropped", dropped, models.TargetColumn))
	}

	var cols [][]float64
	for _, name := range wanted {
		if !joined.Has(name) {
			set.warnings = append(set.warnings, fmt.Sprintf("feature %s missing", name))
			continue
		}
		joined.ToNumber(name)
		vals := joined.Column(name).Floats()
		sum, n := 0.0, 0
		for _, v := range vals {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			set.warnings = append(set.warnings, fmt.Sprintf("feature %s has no values", name))
			continue
		}
		mean := sum / float64(n)
		if n < len(vals) {
			set.warnings = append(set.warnings, fmt.Sprintf("feature %s: %d missing values filled with mean", name, len(vals)-n))
			for i, v := range vals {
				if math.IsNaN(v) {
					vals[i] = mean
				}
			}
		}
		set.features = append(set.features, name)
		cols = append(cols, vals)
	}
	if len(set.features) == 0 {
		return nil, &dataset.SchemaError{Table: "training", Message: fmt.Sprintf("none of the features %v are available", wanted)}
	}

	rows := joined.Len()
	set.X = make([][]float64, rows)
	for i := range set.X {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c[i]
		}
		set.X[i] = row
	}
	set.y = joined.Column(models.TargetColumn).Floats()
	return set, nil
}
