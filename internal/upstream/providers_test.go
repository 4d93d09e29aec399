package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-forecast/internal/dataset"
)

func TestOpenMeteo_Forecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "43.6109", q.Get("latitude"))
		assert.Equal(t, "16", q.Get("forecast_days"))
		assert.Equal(t, "Europe/Paris", q.Get("timezone"))
		assert.True(t, strings.Contains(q.Get("daily"), "shortwave_radiation_sum"))
		fmt.Fprint(w, `{"latitude":43.6,"longitude":3.88,"daily":{
			"time":["2024-06-01","2024-06-02"],
			"shortwave_radiation_sum":[25.1,null],
			"cloud_cover_mean":[10,20]}}`)
	}))
	defer server.Close()

	om := NewOpenMeteo(newTestClient(DefaultRetryPolicy()), OpenMeteoConfig{
		ForecastURL: server.URL + "/v1/forecast",
		ArchiveURL:  server.URL + "/v1/archive",
	})
	tbl, err := om.Forecast(context.Background(), 43.6109, 3.8763, SolarVariables)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "time", tbl.Key)
	sw := tbl.Column("shortwave_radiation_sum")
	require.NotNil(t, sw)
	assert.Equal(t, dataset.Number, sw.Kind)
	assert.Equal(t, 25.1, sw.Float(0))
	assert.True(t, sw.IsMissing(1))
}

func TestOpenMeteo_Archive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2016-09-01", q.Get("start_date"))
		assert.Equal(t, "2016-09-02", q.Get("end_date"))
		assert.Empty(t, q.Get("forecast_days"))
		fmt.Fprint(w, `{"daily":{"time":["2016-09-01","2016-09-02"],"wind_speed_10m_max":[12.5,30.1]}}`)
	}))
	defer server.Close()

	om := NewOpenMeteo(newTestClient(DefaultRetryPolicy()), OpenMeteoConfig{ArchiveURL: server.URL})
	start := time.Date(2016, 9, 1, 0, 0, 0, 0, time.UTC)
	tbl, err := om.Archive(context.Background(), 43.6, 3.8, start, start.AddDate(0, 0, 1), WindVariables)
	require.NoError(t, err)
	assert.Equal(t, []float64{12.5, 30.1}, tbl.Column("wind_speed_10m_max").Floats())

	_, err = om.Archive(context.Background(), 43.6, 3.8, start, start.AddDate(0, 0, -1), WindVariables)
	require.Error(t, err)
}

func TestOpenMeteo_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":true,"reason":"Cannot initialize WeatherVariable from invalid String value"}`)
	}))
	defer server.Close()

	om := NewOpenMeteo(newTestClient(DefaultRetryPolicy()), OpenMeteoConfig{ForecastURL: server.URL})
	_, err := om.Forecast(context.Background(), 0, 0, []string{"bogus"})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.False(t, httpErr.IsTransient())
	assert.Contains(t, httpErr.Message, "invalid String value")
}

func TestHubeau_ObservationsFollowsPages(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Y321002101", q.Get("code_entite"))
		assert.Equal(t, "QmnJ", q.Get("grandeur_hydro_elab"))
		assert.Equal(t, "2", q.Get("size"))

		if q.Get("page") == "2" {
			fmt.Fprint(w, `{"count":3,"next":null,"data":[
				{"code_station":"Y321002101","date_obs_elab":"2022-07-03","resultat_obs_elab":1350.0}]}`)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprintf(w, `{"count":3,"next":"%s?%s&page=2","data":[
			{"code_station":"Y321002101","date_obs_elab":"2022-07-01","resultat_obs_elab":1200.0},
			{"code_station":"Y321002101","date_obs_elab":"2022-07-02","resultat_obs_elab":1290.0,"libelle_qualification":"Bonne"}]}`,
			server.URL, r.URL.RawQuery)
	}))
	defer server.Close()

	h := NewHubeau(newTestClient(DefaultRetryPolicy()), server.URL, 2)
	start := time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)
	tbl, err := h.Observations(context.Background(), "Y321002101", start, start.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, "date_obs_elab", tbl.Columns()[0])
	assert.Equal(t, []float64{1200, 1290, 1350}, tbl.Column("resultat_obs_elab").Floats())
	assert.True(t, tbl.Column("libelle_qualification").IsMissing(0))
}

func TestHubeau_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":0,"data":[]}`)
	}))
	defer server.Close()

	h := NewHubeau(newTestClient(DefaultRetryPolicy()), server.URL, 0)
	tbl, err := h.Observations(context.Background(), "X", time.Now(), time.Now())
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
}
