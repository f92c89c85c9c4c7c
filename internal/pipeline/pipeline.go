package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/analytics"
	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/ingest"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
)

// TableSource builds or returns the cached table for a set of files.
type TableSource interface {
	Load(ctx context.Context, paths []string) (*domain.Table, error)
}

// Publisher forwards a freshly built table to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, table *domain.Table) error
}

// Options tunes the dashboard defaults.
type Options struct {
	DefaultCityCount int
	TopVehicles      int
}

// Service answers dashboard requests over the table built from a data
// directory. The table is rebuilt only when the files in the directory change.
type Service struct {
	dataDir string
	source  TableSource
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Service reading CSV files from dataDir.
func New(dataDir string, source TableSource, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if opts.TopVehicles <= 0 {
		opts.TopVehicles = analytics.DefaultTopVehicles
	}
	return &Service{
		dataDir: dataDir,
		source:  source,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a table has been built, or an error
// describing why the service is not yet ready.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("incident table has not been loaded yet")
	}
	return nil
}

// Warm loads the table ahead of the first request.
func (s *Service) Warm(ctx context.Context) error {
	table, err := s.Table(ctx)
	if err != nil {
		return err
	}
	first, last, _ := table.DateSpan()
	s.logger.Info("incident table ready",
		"records", len(table.Records),
		"files", len(table.Sources),
		"skipped_files", len(table.Warnings),
		"first_date", first.Format(time.DateOnly),
		"last_date", last.Format(time.DateOnly),
	)
	return nil
}

// Table returns the unified table for the current contents of the data
// directory.
func (s *Service) Table(ctx context.Context) (*domain.Table, error) {
	paths, err := ingest.Discover(s.dataDir)
	if err != nil {
		return nil, err
	}
	table, err := s.source.Load(ctx, paths)
	if err != nil {
		return nil, err
	}
	s.ready.Store(true)
	return table, nil
}

// Cities returns every city in the table and the default selection.
func (s *Service) Cities(ctx context.Context) (all, defaults []string, err error) {
	table, err := s.Table(ctx)
	if err != nil {
		return nil, nil, err
	}
	return table.Cities(), table.DefaultCities(s.opts.DefaultCityCount), nil
}

// Dashboard filters the table by q and computes every view. A nil city list
// selects the default cities; an empty non-nil list selects none.
func (s *Service) Dashboard(ctx context.Context, q analytics.Query) (analytics.Dashboard, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return analytics.Dashboard{}, err
	}

	start := time.Now()
	if q.Cities == nil {
		q.Cities = table.DefaultCities(s.opts.DefaultCityCount)
	}
	if q.TopVehicles <= 0 {
		q.TopVehicles = s.opts.TopVehicles
	}

	dash, err := analytics.Build(table, q)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	s.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("dashboard built",
		"cities", len(q.Cities),
		"start", dash.Range.Start.Format(time.DateOnly),
		"end", dash.Range.End.Format(time.DateOnly),
		"records", len(dash.Records),
	)
	return dash, nil
}

// PublishHook adapts a Publisher to an ingest.LoadHook. Publishing failures
// are logged and counted; they never fail the load.
func PublishHook(pub Publisher, logger *slog.Logger, metrics *observability.Metrics) ingest.LoadHook {
	return func(ctx context.Context, table *domain.Table) {
		if err := pub.Publish(ctx, table); err != nil {
			logger.Error("publish table failed", "error", err, "fingerprint", table.Fingerprint)
			metrics.PublishErrors.Inc()
			return
		}
		metrics.RecordsPublished.Add(float64(len(table.Records)))
		logger.Info("table published", "records", len(table.Records), "fingerprint", table.Fingerprint)
	}
}
