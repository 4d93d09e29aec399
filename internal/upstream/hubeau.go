package upstream

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"energy-forecast/internal/dataset"
)

// Hubeau page links are followed at most this many times per call.
const maxHubeauPages = 50

// Hubeau fetches daily mean flow observations (QmnJ) for a station.
type Hubeau struct {
	base     *BaseClient
	endpoint string
	pageSize int
}

// NewHubeau creates a Hubeau obs_elab client.
func NewHubeau(base *BaseClient, endpoint string, pageSize int) *Hubeau {
	if pageSize <= 0 {
		pageSize = 20000
	}
	return &Hubeau{base: base, endpoint: endpoint, pageSize: pageSize}
}

type hubeauResponse struct {
	Count int              `json:"count"`
	First string           `json:"first"`
	Next  *string          `json:"next"`
	Data  []map[string]any `json:"data"`
}

// Observations returns every observation of station between start and end,
// following pagination links. The table is keyed on "date_obs_elab".
func (h *Hubeau) Observations(ctx context.Context, station string, start, end time.Time) (*dataset.Table, error) {
	q := url.Values{}
	q.Set("code_entite", station)
	q.Set("date_debut_obs_elab", start.Format(time.DateOnly))
	q.Set("date_fin_obs_elab", end.Format(time.DateOnly))
	q.Set("grandeur_hydro_elab", "QmnJ")
	q.Set("size", strconv.Itoa(h.pageSize))

	var records []map[string]any
	next := h.endpoint + "?" + q.Encode()
	for page := 0; next != "" && page < maxHubeauPages; page++ {
		var body hubeauResponse
		if err := h.base.getJSON(ctx, next, &body); err != nil {
			return nil, err
		}
		records = append(records, body.Data...)

		next = ""
		if body.Next != nil && len(body.Data) > 0 {
			next = *body.Next
		}
	}

	if len(records) == 0 {
		return dataset.New("date_obs_elab"), nil
	}
	return dataset.FromRecords("date_obs_elab", records)
}
