package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/analytics"
	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/ingest"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
	"github.com/couchcryptid/traffic-incident-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture2023 = "Date,Time,City,Involved,Type,Latitude,Longitude\n" +
	"01/02/2023,2:15 PM,makati,Car,Collision,14.55,121.02\n" +
	"01/02/2023,8:30 AM,pasig,Bus,Stalled,14.57,121.06\n" +
	"02/14/2023,2:40 PM,makati,Car,Collision,14.56,121.03\n" +
	"03/01/2023,11:00 PM,taguig,Motorcycle,Collision,14.52,121.05\n" +
	"03/02/2023,6:00 AM,quezon city,Jeepney,Stalled,14.65,121.04\n" +
	"03/03/2023,7:00 AM,manila,Truck,Collision,14.60,120.98\n" +
	"03/04/2023,7:15 AM,caloocan,Car,Collision,14.65,120.97\n"

// --- mocks ---

type mockPublisher struct {
	calls atomic.Int32
	err   error
}

func (m *mockPublisher) Publish(_ context.Context, _ *domain.Table) error {
	m.calls.Add(1)
	return m.err
}

type failingSource struct{ err error }

func (f failingSource) Load(context.Context, []string) (*domain.Table, error) { return nil, f.err }

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func newService(t *testing.T, dir string, hook ingest.LoadHook) (*pipeline.Service, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	loader := ingest.NewLoader(2, discardLogger(), metrics)
	cached := ingest.NewCachedLoader(loader, 2, hook, discardLogger(), metrics)
	svc := pipeline.New(dir, cached, pipeline.Options{DefaultCityCount: 5, TopVehicles: 10}, discardLogger(), metrics)
	return svc, metrics
}

// --- tests ---

func TestService_ReadinessAfterWarm(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	svc, _ := newService(t, dir, nil)

	require.Error(t, svc.CheckReadiness(context.Background()))
	require.NoError(t, svc.Warm(context.Background()))
	assert.NoError(t, svc.CheckReadiness(context.Background()))
}

func TestService_WarmFailsWithoutFiles(t *testing.T) {
	svc, _ := newService(t, t.TempDir(), nil)

	err := svc.Warm(context.Background())
	require.ErrorIs(t, err, domain.ErrNoCSVFilesFound)
	assert.Error(t, svc.CheckReadiness(context.Background()))
}

func TestService_WarmFailsWhenNoFileParses(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "junk.csv", "nothing,useful\n1,2\n")
	svc, _ := newService(t, dir, nil)

	assert.ErrorIs(t, svc.Warm(context.Background()), domain.ErrNoValidData)
}

func TestService_SourceErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	boom := errors.New("boom")
	svc := pipeline.New(dir, failingSource{err: boom}, pipeline.Options{}, discardLogger(), observability.NewMetricsForTesting())

	_, err := svc.Table(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestService_Cities(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	svc, _ := newService(t, dir, nil)

	all, defaults, err := svc.Cities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Caloocan", "Makati", "Manila", "Pasig", "Quezon City", "Taguig"}, all)
	assert.Equal(t, []string{"Caloocan", "Makati", "Manila", "Pasig", "Quezon City"}, defaults)
}

func TestService_Dashboard_DefaultCities(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	svc, _ := newService(t, dir, nil)

	dash, err := svc.Dashboard(context.Background(), analytics.Query{})
	require.NoError(t, err)

	// Taguig is sixth alphabetically and not part of the default selection.
	assert.Equal(t, 6, dash.Summary.TotalIncidents)
	assert.Equal(t, "Makati", dash.Summary.TopCity)
	assert.Equal(t, "Collision", dash.Summary.TopIncidentType)
	assert.Equal(t, "14:00", dash.Summary.PeakHour)
	assert.Equal(t, time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC), dash.Range.Start)
	assert.Equal(t, time.Date(2023, time.March, 4, 0, 0, 0, 0, time.UTC), dash.Range.End)
}

func TestService_Dashboard_NoCities(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	svc, metrics := newService(t, dir, nil)

	dash, err := svc.Dashboard(context.Background(), analytics.Query{Cities: []string{}})
	require.NoError(t, err)

	assert.Equal(t, 0, dash.Summary.TotalIncidents)
	assert.Equal(t, analytics.NotAvailable, dash.Summary.TopCity)
	assert.Empty(t, dash.Trend)
	assert.Empty(t, dash.Vehicles)
	assert.Empty(t, dash.Matrix.Rows)
	assert.Nil(t, dash.Density.Center)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.QueryDuration))
}

func TestService_Dashboard_SingleDay(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	svc, _ := newService(t, dir, nil)
	d := time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)

	dash, err := svc.Dashboard(context.Background(), analytics.Query{
		Dates:  []time.Time{d},
		Cities: []string{"Makati", "Pasig", "Taguig"},
	})
	require.NoError(t, err)

	require.Len(t, dash.Records, 2)
	for _, r := range dash.Records {
		assert.Equal(t, d, r.Date)
	}
}

func TestService_ReloadsWhenFilesChange(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "2023.csv", fixture2023)
	pub := &mockPublisher{}
	metrics := observability.NewMetricsForTesting()
	svc, _ := newService(t, dir, pipeline.PublishHook(pub, discardLogger(), metrics))

	first, err := svc.Table(context.Background())
	require.NoError(t, err)
	again, err := svc.Table(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int32(1), pub.calls.Load())

	writeFixture(t, dir, "2024.csv", "Date,City,Latitude,Longitude\n2024-01-05,makati,14.55,121.02\n")
	reloaded, err := svc.Table(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Len(t, reloaded.Records, len(first.Records)+1)
	assert.Equal(t, int32(2), pub.calls.Load())
	assert.InDelta(t, float64(len(first.Records)+len(reloaded.Records)), testutil.ToFloat64(metrics.RecordsPublished), 0)
}

func TestPublishHook_ErrorIsCounted(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	metrics := observability.NewMetricsForTesting()
	hook := pipeline.PublishHook(pub, discardLogger(), metrics)

	hook(context.Background(), &domain.Table{Records: make([]domain.IncidentRecord, 3)})

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.RecordsPublished), 0)
}
