// Package normalizer turns upstream tables into the raw and clean tables that
// are persisted side by side. Raw tables keep upstream names and units with
// only the date normalised; clean tables are renamed, converted, deduplicated,
// interpolated and range checked.
package normalizer

import (
	"context"
	"fmt"
	"math"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// Domain selects the schema a table is normalised to.
type Domain string

const (
	DomainSolar           Domain = "solar"
	DomainWind            Domain = "wind"
	DomainHydro           Domain = "hydro"
	DomainProductionSolar Domain = "production:solar"
	DomainProductionWind  Domain = "production:wind"
	DomainProductionHydro Domain = "production:hydro"
)

// ProductionDomain returns the production domain of a producer type.
func ProductionDomain(p models.ProducerType) Domain {
	return Domain("production:" + string(p))
}

// Unit conversion factors.
const (
	MJToKWh        = 0.27778
	SecondsPerHour = 3600.0
)

var dateCandidates = []string{"time", "date", "date_obs_elab"}

// Report summarises one normalisation.
type Report struct {
	Domain                    Domain         `json:"domain"`
	Path                      string         `json:"path"`
	InputRows                 int            `json:"input_rows"`
	OutputRows                int            `json:"output_rows"`
	InvalidDates              int            `json:"invalid_dates"`
	Duplicates                int            `json:"duplicates"`
	Interpolated              int            `json:"interpolated"`
	MissingAfterInterpolation int            `json:"missing_after_interpolation"`
	Dropped                   map[string]int `json:"dropped,omitempty"`
	Warnings                  []string       `json:"warnings,omitempty"`
	Converted                 bool           `json:"converted"`
}

func (r *Report) drop(reason string, n int) {
	if n <= 0 {
		return
	}
	if r.Dropped == nil {
		r.Dropped = map[string]int{}
	}
	r.Dropped[reason] += n
}

// Normalizer is stateless apart from its logger and metrics.
type Normalizer struct {
	logger  logging.Logger
	metrics *metrics.Collector
}

// New creates a Normalizer.
func New(logger logging.Logger, metricsCollector *metrics.Collector) *Normalizer {
	return &Normalizer{logger: logger, metrics: metricsCollector}
}

// Clean produces the analysis ready table for domain. The input is not modified.
func (n *Normalizer) Clean(ctx context.Context, domain Domain, in *dataset.Table) (*dataset.Table, *Report, error) {
	report := &Report{Domain: domain, Path: "clean"}
	if in.Empty() {
		return dataset.New(models.DateColumn), report, nil
	}
	t := in.Clone()
	report.InputRows = t.Len()

	var err error
	switch domain {
	case DomainSolar:
		err = n.cleanSolar(ctx, t, report)
	case DomainWind:
		err = n.cleanWind(ctx, t, report)
	case DomainHydro:
		err = n.cleanHydro(ctx, t, report)
	case DomainProductionSolar, DomainProductionWind, DomainProductionHydro:
		err = n.cleanProduction(ctx, t, domain, report)
	default:
		err = fmt.Errorf("unknown normalizer domain %q", domain)
	}
	if err != nil {
		return nil, report, err
	}

	t.Units = dataset.UnitsCanonical
	report.OutputRows = t.Len()
	n.finish(ctx, report)
	return t, report, nil
}

// Raw produces the source faithful table for domain: the date column is
// normalised, values and units are untouched.
func (n *Normalizer) Raw(ctx context.Context, domain Domain, in *dataset.Table) (*dataset.Table, *Report, error) {
	report := &Report{Domain: domain, Path: "raw"}
	if in.Empty() {
		return dataset.New(models.DateColumn), report, nil
	}
	t := in.Clone()
	report.InputRows = t.Len()

	var err error
	switch domain {
	case DomainSolar:
		if err = n.normalizeDate(ctx, t, domain, models.DateColumn, report); err == nil {
			t.Select(solarRawColumns...)
		}
	case DomainWind:
		err = n.normalizeDate(ctx, t, domain, models.DateColumn, report)
	case DomainHydro:
		err = n.normalizeDate(ctx, t, domain, "date_obs_elab", report)
	case DomainProductionSolar, DomainProductionWind, DomainProductionHydro:
		err = n.rawProduction(ctx, t, domain, report)
	default:
		err = fmt.Errorf("unknown normalizer domain %q", domain)
	}
	if err != nil {
		return nil, report, err
	}

	t.Units = dataset.UnitsSource
	report.OutputRows = t.Len()
	n.finish(ctx, report)
	return t, report, nil
}

// normalizeDate finds the date bearing column, renames it to target, parses
// it and drops rows whose date cannot be read.
func (n *Normalizer) normalizeDate(ctx context.Context, t *dataset.Table, domain Domain, target string, report *Report) error {
	src := ""
	if t.Has(target) {
		src = target
	} else {
		for _, c := range dateCandidates {
			if t.Has(c) {
				src = c
				break
			}
		}
	}
	if src == "" {
		return &dataset.SchemaError{
			Table:   string(domain),
			Column:  target,
			Message: fmt.Sprintf("no date column, expected one of %v", dateCandidates),
		}
	}

	t.Rename(src, target)
	t.Key = target
	t.ToDate(target)

	dates := t.Column(target)
	removed := t.Filter(func(i int) bool { return !dates.IsMissing(i) })
	if removed > 0 {
		report.InvalidDates = removed
		report.drop("invalid_date", removed)
		n.logger.Warn(ctx, "[NORMALIZE_DATE] Rows with unreadable dates dropped", logging.Fields{
			"domain": domain,
			"column": src,
			"count":  removed,
			"stage":  "DATE",
		})
	}
	return nil
}

// dedupAndSort applies the shared clean path steps.
func (n *Normalizer) dedupAndSort(ctx context.Context, t *dataset.Table, report *Report) {
	report.Duplicates = t.DedupBy(models.DateColumn)
	if report.Duplicates > 0 {
		n.logger.Info(ctx, "[NORMALIZE_DEDUP] Duplicate dates removed", logging.Fields{
			"domain":     report.Domain,
			"duplicates": report.Duplicates,
			"stage":      "DEDUP",
		})
	}
	t.SortByDate(models.DateColumn)
}

func (n *Normalizer) interpolate(ctx context.Context, t *dataset.Table, report *Report) {
	report.Interpolated, report.MissingAfterInterpolation = t.Interpolate(models.DateColumn)
	if report.Interpolated > 0 || report.MissingAfterInterpolation > 0 {
		n.logger.Info(ctx, "[NORMALIZE_INTERPOLATE] Missing values interpolated", logging.Fields{
			"domain":       report.Domain,
			"interpolated": report.Interpolated,
			"remaining":    report.MissingAfterInterpolation,
			"stage":        "INTERPOLATE",
		})
	}
}

// rangeRule is a declarative plausibility check on one column. Missing
// values never violate a rule.
type rangeRule struct {
	column       string
	min, max     float64
	maxExclusive bool
	drop         bool
	reason       string
}

func (r rangeRule) violates(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if v < r.min || v > r.max {
		return true
	}
	return r.maxExclusive && v == r.max
}

// applyRules logs every violated rule and drops rows for the dropping ones.
func (n *Normalizer) applyRules(ctx context.Context, t *dataset.Table, rules []rangeRule, report *Report) {
	for _, rule := range rules {
		col := t.Column(rule.column)
		if col == nil || col.Kind != dataset.Number {
			continue
		}

		if rule.drop {
			removed := t.Filter(func(i int) bool { return !rule.violates(col.Float(i)) })
			if removed > 0 {
				report.drop(rule.reason, removed)
				n.logger.Warn(ctx, "[NORMALIZE_OUTLIER_DROP] Out of range rows removed", logging.Fields{
					"domain": report.Domain,
					"column": rule.column,
					"min":    rule.min,
					"max":    rule.max,
					"count":  removed,
					"stage":  "OUTLIERS",
				})
			}
			continue
		}

		count := 0
		for i := 0; i < t.Len(); i++ {
			if rule.violates(col.Float(i)) {
				count++
			}
		}
		if count > 0 {
			msg := fmt.Sprintf("%d values of %s outside [%g, %g]", count, rule.column, rule.min, rule.max)
			report.Warnings = append(report.Warnings, msg)
			n.logger.Warn(ctx, "[NORMALIZE_OUTLIER] Implausible values detected", logging.Fields{
				"domain": report.Domain,
				"column": rule.column,
				"min":    rule.min,
				"max":    rule.max,
				"count":  count,
				"stage":  "OUTLIERS",
			})
		}
	}
}

func (n *Normalizer) finish(ctx context.Context, report *Report) {
	for reason, count := range report.Dropped {
		n.metrics.RecordDropped(string(report.Domain), reason, count)
	}
	n.logger.Debug(ctx, "[NORMALIZE_DONE] Table normalised", logging.Fields{
		"domain":      report.Domain,
		"path":        report.Path,
		"input_rows":  report.InputRows,
		"output_rows": report.OutputRows,
		"stage":       "COMPLETE",
	})
}
