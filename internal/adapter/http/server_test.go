package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/traffic-incident-etl/internal/adapter/http"
	"github.com/couchcryptid/traffic-incident-etl/internal/analytics"
	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/ingest"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
	"github.com/couchcryptid/traffic-incident-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	readyErr error
	err      error
	dash     analytics.Dashboard
	lastQ    *analytics.Query
}

func (m *mockService) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockService) Cities(_ context.Context) ([]string, []string, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return []string{"Makati", "Pasig", "Taguig"}, []string{"Makati", "Pasig"}, nil
}

func (m *mockService) Dashboard(_ context.Context, q analytics.Query) (analytics.Dashboard, error) {
	m.lastQ = &q
	if m.err != nil {
		return analytics.Dashboard{}, m.err
	}
	return m.dash, nil
}

func newTestServer(svc *mockService) *httpadapter.Server {
	return httpadapter.NewServer(":0", svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(&mockService{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(&mockService{}), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(&mockService{readyErr: fmt.Errorf("not loaded")}), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&mockService{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCities(t *testing.T) {
	rec := get(t, newTestServer(&mockService{}), "/api/v1/cities")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cities   []string `json:"cities"`
		Defaults []string `json:"defaults"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, []string{"Makati", "Pasig", "Taguig"}, body.Cities)
	assert.Equal(t, []string{"Makati", "Pasig"}, body.Defaults)
}

func TestDashboard_QueryParameters(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantCities []string
		wantDates  []time.Time
	}{
		{
			name:       "no city parameter selects defaults",
			target:     "/api/v1/dashboard",
			wantCities: nil,
		},
		{
			name:       "empty city parameter selects none",
			target:     "/api/v1/dashboard?city=",
			wantCities: []string{},
		},
		{
			name:       "cities are normalized",
			target:     "/api/v1/dashboard?city=makati&city=%20quezon%20city%20",
			wantCities: []string{"Makati", "Quezon City"},
		},
		{
			name:      "start and end",
			target:    "/api/v1/dashboard?start=2023-01-01&end=2023-03-31",
			wantDates: []time.Time{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)},
		},
		{
			name:      "start only",
			target:    "/api/v1/dashboard?start=2023-02-14",
			wantDates: []time.Time{time.Date(2023, 2, 14, 0, 0, 0, 0, time.UTC)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			rec := get(t, newTestServer(svc), tt.target)

			require.Equal(t, http.StatusOK, rec.Code)
			require.NotNil(t, svc.lastQ)
			assert.Equal(t, tt.wantCities, svc.lastQ.Cities)
			assert.Equal(t, tt.wantDates, svc.lastQ.Dates)
		})
	}
}

func TestDashboard_TopParameter(t *testing.T) {
	svc := &mockService{}
	rec := get(t, newTestServer(svc), "/api/v1/dashboard?top=3")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.lastQ.TopVehicles)
}

func TestDashboard_BadRequests(t *testing.T) {
	targets := []string{
		"/api/v1/dashboard?start=01/02/2023",
		"/api/v1/dashboard?end=2023-13-01",
		"/api/v1/dashboard?top=0",
		"/api/v1/incidents?top=many",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			svc := &mockService{}
			rec := get(t, newTestServer(svc), target)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, svc.lastQ)

			var body map[string]string
			decodeBody(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDashboard_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid range", fmt.Errorf("three dates: %w", domain.ErrInvalidDateRange), http.StatusBadRequest},
		{"no files", fmt.Errorf("scan data: %w", domain.ErrNoCSVFilesFound), http.StatusServiceUnavailable},
		{"no valid data", domain.ErrNoValidData, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&mockService{err: tt.err})
			assert.Equal(t, tt.want, get(t, srv, "/api/v1/dashboard").Code)
			assert.Equal(t, tt.want, get(t, srv, "/api/v1/incidents").Code)
		})
	}
}

func TestCities_IngestErrorReturns503(t *testing.T) {
	rec := get(t, newTestServer(&mockService{err: domain.ErrNoValidData}), "/api/v1/cities")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIncidents_EmptySelectionIsEmptyList(t *testing.T) {
	rec := get(t, newTestServer(&mockService{}), "/api/v1/incidents?city=")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count     int               `json:"count"`
		Incidents []json.RawMessage `json:"incidents"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Incidents)
	assert.Contains(t, rec.Body.String(), `"incidents":[]`)
}

func TestDashboard_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	csv := "Date,Time,City,Involved,Type,Latitude,Longitude\n" +
		"2023-01-02,2:15 PM,makati,Car,Collision,14.55,121.02\n" +
		"2023-01-03,8:30 AM,pasig,Bus,Stalled,14.57,121.06\n" +
		"2023-01-03,9:00 AM,pasig,Car,Stalled,,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2023.csv"), []byte(csv), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	source := ingest.NewCachedLoader(ingest.NewLoader(1, logger, metrics), 1, nil, logger, metrics)
	svc := pipeline.New(dir, source, pipeline.Options{DefaultCityCount: 5}, logger, metrics)
	srv := httpadapter.NewServer(":0", svc, logger)

	rec := get(t, srv, "/api/v1/dashboard?city=Pasig")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Summary  analytics.Summary     `json:"summary"`
		Vehicles []analytics.RankEntry `json:"vehicles"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 1, body.Summary.TotalIncidents)
	assert.Equal(t, "Pasig", body.Summary.TopCity)
	assert.Equal(t, "Stalled", body.Summary.TopIncidentType)
	assert.Equal(t, "8:00", body.Summary.PeakHour)
	assert.Equal(t, []analytics.RankEntry{{Involved: "Bus", Count: 1}}, body.Vehicles)

	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

func TestRateLimit_RejectsBeyondBurst(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockService{}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		httpadapter.WithRateLimit(0.001, 2))

	assert.Equal(t, http.StatusOK, get(t, srv, "/api/v1/cities").Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/v1/cities").Code)

	rec := get(t, srv, "/api/v1/cities")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health and metrics are outside the API budget.
	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
}

func TestUnknownAPIRouteReturns404(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, get(t, newTestServer(&mockService{}), "/api/v1/nope").Code)
}
