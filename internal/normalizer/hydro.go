package normalizer

import (
	"context"
	"math"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
)

// FlowColumn holds the daily mean flow in l/s.
const FlowColumn = "debit_l_s"

var flowSources = []string{"resultat_obs_elab", "result_obs_elab"}

var hydroAdminColumns = []string{
	"code_site",
	"code_station",
	"date_prod",
	"code_methode",
	"libelle_methode",
	"code_qualification",
	"libelle_qualification",
	"longitude",
	"latitude",
	"grandeur_hydro_elab",
	"code_statut",
	"libelle_statut",
}

var hydroRules = []rangeRule{
	{column: FlowColumn, min: 0, max: math.Inf(1), drop: true, reason: "negative_flow"},
}

func (n *Normalizer) cleanHydro(ctx context.Context, t *dataset.Table, report *Report) error {
	if err := n.normalizeDate(ctx, t, DomainHydro, models.DateColumn, report); err != nil {
		return err
	}
	for _, src := range flowSources {
		if t.Has(src) {
			t.Rename(src, FlowColumn)
			break
		}
	}
	if !t.Has(FlowColumn) {
		return &dataset.SchemaError{Table: string(DomainHydro), Column: FlowColumn, Message: "no flow column"}
	}
	t.ToNumber(FlowColumn)
	t.Drop(hydroAdminColumns...)

	n.dedupAndSort(ctx, t, report)
	n.applyRules(ctx, t, hydroRules, report)
	n.interpolate(ctx, t, report)
	return nil
}
