package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
)

// Loader reads a set of source files and builds the unified table.
type Loader struct {
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader that parses up to workers files at a time.
func NewLoader(workers int, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

type fileOutcome struct {
	path   string
	result FileResult
	err    error
}

// Load parses every file in paths and normalizes the rows into one table.
// Files that fail to parse are skipped with a warning. Load fails with
// domain.ErrNoCSVFilesFound when paths is empty and domain.ErrNoValidData
// when no file parses.
func (l *Loader) Load(ctx context.Context, paths []string) (*domain.Table, error) {
	if len(paths) == 0 {
		return nil, domain.ErrNoCSVFilesFound
	}
	start := time.Now()

	outcomes := make([]fileOutcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := ReadFile(path)
			outcomes[i] = fileOutcome{path: path, result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read source files: %w", err)
	}

	table := &domain.Table{Dropped: domain.DropCounts{}}
	for _, o := range outcomes {
		if o.err != nil {
			l.logger.Warn("skipping unreadable file", "path", o.path, "error", o.err)
			l.metrics.FileErrors.Inc()
			table.Warnings = append(table.Warnings, domain.FileWarning{Path: o.path, Error: o.err.Error()})
			continue
		}
		l.metrics.FilesRead.Inc()
		table.Sources = append(table.Sources, o.path)
		table.HasIncidentType = table.HasIncidentType || o.result.HasType
		l.appendRecords(table, o.result.Records)
	}

	if len(table.Sources) == 0 {
		return nil, fmt.Errorf("%w: %d of %d files failed", domain.ErrNoValidData, len(table.Warnings), len(paths))
	}

	table.LoadedAt = domain.Now()

	l.metrics.RecordsLoaded.Set(float64(len(table.Records)))
	l.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	l.logger.Info("table built",
		"files", len(table.Sources),
		"skipped_files", len(table.Warnings),
		"rows_read", table.RowsRead,
		"records", len(table.Records),
		"dropped_date", table.Dropped[domain.DropDate],
		"dropped_coordinates", table.Dropped[domain.DropCoordinates],
		"duration", time.Since(start),
	)
	return table, nil
}

func (l *Loader) appendRecords(table *domain.Table, raws []domain.RawRecord) {
	table.RowsRead += len(raws)
	l.metrics.RowsRead.Add(float64(len(raws)))
	for _, raw := range raws {
		rec, reason, ok := domain.Normalize(raw)
		if !ok {
			table.Dropped[reason]++
			l.metrics.RowsDropped.WithLabelValues(string(reason)).Inc()
			continue
		}
		table.Records = append(table.Records, rec)
	}
}
