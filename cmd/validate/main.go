// Command validate ingests a directory of incident CSV files and checks the
// resulting table end to end: per-file parse results, drop counts, record
// invariants, reload determinism and the consistency of the dashboard views.
// It exits non-zero when ingestion fails or any check does not hold.
//
// Usage:
//
//	go run ./cmd/validate -dir data/mock
//	go run ./cmd/validate -dir data/mock -city Makati -city Pasig -start 2023-01-01 -end 2023-06-30
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/analytics"
	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/ingest"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// cityFlags collects repeated -city flags. set distinguishes "not given"
// from "given".
type cityFlags struct {
	values []string
	set    bool
}

func (c *cityFlags) String() string { return strings.Join(c.values, ",") }

func (c *cityFlags) Set(v string) error {
	c.set = true
	if strings.TrimSpace(v) != "" {
		c.values = append(c.values, domain.NormalizeCity(&v))
	}
	return nil
}

type options struct {
	dir     string
	workers int
	start   string
	end     string
	cities  cityFlags
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", "data", "directory containing incident CSV files")
	flag.IntVar(&opts.workers, "workers", 4, "files parsed concurrently")
	flag.StringVar(&opts.start, "start", "", "range start (YYYY-MM-DD)")
	flag.StringVar(&opts.end, "end", "", "range end (YYYY-MM-DD)")
	flag.Var(&opts.cities, "city", "city to select (repeatable; default: first 5)")
	flag.Parse()

	if opts.workers < 1 {
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(context.Background(), opts))
}

func run(ctx context.Context, opts options) int {
	fmt.Println("=== Traffic Incident Data Validation ===")
	fmt.Println()

	paths, err := ingest.Discover(opts.dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := ingest.NewLoader(opts.workers, logger, observability.NewMetricsForTesting())

	table, err := loader.Load(ctx, paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	query, err := buildQuery(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFiles(paths, table),
		validateRecords(table),
		validateDeterminism(ctx, loader, paths, table),
		validateViews(table, query),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d read, %d loaded, %d dropped (date=%d, coordinates=%d)\n",
		table.RowsRead, len(table.Records),
		table.Dropped[domain.DropDate]+table.Dropped[domain.DropCoordinates],
		table.Dropped[domain.DropDate], table.Dropped[domain.DropCoordinates])

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func buildQuery(opts options) (analytics.Query, error) {
	var q analytics.Query
	for _, raw := range []string{opts.start, opts.end} {
		if raw == "" {
			continue
		}
		d, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
		if err != nil {
			return analytics.Query{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
		}
		q.Dates = append(q.Dates, d)
	}
	if opts.cities.set {
		q.Cities = append([]string{}, opts.cities.values...)
	}
	return q, nil
}

// ── Phase 1: Files ──
// Reports each file and checks that skipped files are exactly those that
// fail to parse on their own.

func validateFiles(paths []string, table *domain.Table) *phase {
	p := &phase{name: "Phase 1: Files (per-file parse results)"}

	skipped := make(map[string]bool, len(table.Warnings))
	for _, w := range table.Warnings {
		skipped[w.Path] = true
	}

	rows := 0
	for _, path := range paths {
		res, err := ingest.ReadFile(path)
		if err != nil {
			var perr *domain.FileParseError
			if !errors.As(err, &perr) {
				p.errorf("%s: error is not a FileParseError: %v", path, err)
			}
			fmt.Printf("  SKIP %-40s %v\n", path, err)
			if !skipped[path] {
				p.errorf("%s: fails to parse but was not reported as skipped", path)
			}
			continue
		}
		rows += len(res.Records)
		fmt.Printf("  OK   %-40s %5d rows  columns=%s\n", path, len(res.Records), strings.Join(res.Header, "|"))
		if skipped[path] {
			p.errorf("%s: parses on its own but was skipped", path)
		}
	}

	if rows != table.RowsRead {
		p.errorf("rows read: files have %d, table reports %d", rows, table.RowsRead)
	}
	if len(table.Sources)+len(table.Warnings) != len(paths) {
		p.errorf("files: %d discovered, %d loaded + %d skipped", len(paths), len(table.Sources), len(table.Warnings))
	}
	return p
}

// ── Phase 2: Records ──
// Checks the invariants every normalized record must satisfy.

func validateRecords(table *domain.Table) *phase {
	p := &phase{name: "Phase 2: Records (normalization invariants)"}

	dropped := 0
	for _, n := range table.Dropped {
		dropped += n
	}
	if len(table.Records)+dropped != table.RowsRead {
		p.errorf("row accounting: %d records + %d dropped != %d read", len(table.Records), dropped, table.RowsRead)
	}

	ids := make(map[string]int, len(table.Records))
	for i := range table.Records {
		checkRecord(p, i, &table.Records[i])
		if prev, ok := ids[table.Records[i].ID]; ok {
			p.errorf("record %d: duplicate ID %s (first seen at %d)", i, table.Records[i].ID, prev)
		}
		ids[table.Records[i].ID] = i
	}
	return p
}

func checkRecord(p *phase, i int, r *domain.IncidentRecord) {
	pf := func(format string, args ...any) {
		p.errorf("record %d (id %s, %s): "+format, append([]any{i, r.ID, r.Source}, args...)...)
	}

	if r.Date.IsZero() {
		pf("date is zero")
	} else if r.Date.Location() != time.UTC || !r.Date.Equal(r.Date.Truncate(24*time.Hour)) {
		pf("date %s is not midnight UTC", r.Date.Format(time.RFC3339))
	}
	if r.MonthBucket != domain.MonthBucket(r.Date) {
		pf("month bucket %q does not match date %s", r.MonthBucket, r.Date.Format(time.DateOnly))
	}
	if math.IsNaN(r.Latitude) || math.IsInf(r.Latitude, 0) || math.IsNaN(r.Longitude) || math.IsInf(r.Longitude, 0) {
		pf("coordinates are not finite")
	}
	if r.City == "" || r.City != strings.TrimSpace(r.City) {
		pf("city %q is empty or untrimmed", r.City)
	}
	if r.Involved == "" {
		pf("involved is empty")
	}

	switch {
	case r.TimeOfDay == nil && r.Hour != nil:
		pf("hour %d without a time of day", *r.Hour)
	case r.TimeOfDay != nil && r.Hour == nil:
		pf("time of day %s without an hour", r.TimeOfDay)
	case r.TimeOfDay != nil && *r.Hour != r.TimeOfDay.Hour:
		pf("hour %d does not match time of day %s", *r.Hour, r.TimeOfDay)
	}
}

// ── Phase 3: Determinism ──
// Loading the same files again must produce an identical table.

func validateDeterminism(ctx context.Context, loader *ingest.Loader, paths []string, table *domain.Table) *phase {
	p := &phase{name: "Phase 3: Determinism (reload equality)"}

	again, err := loader.Load(ctx, paths)
	if err != nil {
		p.errorf("reload failed: %v", err)
		return p
	}
	if diff := cmp.Diff(table, again, cmpopts.IgnoreFields(domain.Table{}, "LoadedAt")); diff != "" {
		p.errorf("reload differs (-first +second):\n%s", diff)
	}
	return p
}

// ── Phase 4: Views ──
// Builds the dashboard for the selection and cross-checks the views.

func validateViews(table *domain.Table, q analytics.Query) *phase {
	p := &phase{name: "Phase 4: Views (aggregate consistency)"}

	if q.Cities == nil {
		q.Cities = table.DefaultCities(5)
	}
	dash, err := analytics.Build(table, q)
	if err != nil {
		p.errorf("build dashboard: %v", err)
		return p
	}
	total := len(dash.Records)

	fmt.Println()
	fmt.Printf("Selection: %s .. %s, cities=%s\n",
		dash.Range.Start.Format(time.DateOnly), dash.Range.End.Format(time.DateOnly), strings.Join(dash.Cities, ", "))
	fmt.Printf("Summary: total=%d top_city=%s top_type=%s peak_hour=%s\n",
		dash.Summary.TotalIncidents, dash.Summary.TopCity, dash.Summary.TopIncidentType, dash.Summary.PeakHour)

	if dash.Summary.TotalIncidents != total {
		p.errorf("summary total %d != %d filtered records", dash.Summary.TotalIncidents, total)
	}
	if len(dash.Density.Points) != total {
		p.errorf("density has %d points for %d records", len(dash.Density.Points), total)
	}
	if (dash.Density.Center == nil) != (total == 0) {
		p.errorf("density center presence does not match record count %d", total)
	}

	trendSum := 0
	for i, tp := range dash.Trend {
		trendSum += tp.Count
		if i > 0 && dash.Trend[i-1].Month >= tp.Month {
			p.errorf("trend out of order at %s", tp.Month)
		}
	}
	if trendSum != total {
		p.errorf("trend sums to %d, want %d", trendSum, total)
	}

	withHour := 0
	for _, r := range dash.Records {
		if r.Hour != nil {
			withHour++
		}
	}
	matrixSum := 0
	for _, c := range dash.Matrix.Cells() {
		matrixSum += c.Count
	}
	if matrixSum != withHour {
		p.errorf("matrix sums to %d, want %d records with an hour", matrixSum, withHour)
	}
	if total > 0 && len(dash.Matrix.Rows) != 7 {
		p.errorf("matrix has %d rows, want 7", len(dash.Matrix.Rows))
	}

	if len(dash.Vehicles) > analytics.DefaultTopVehicles {
		p.errorf("vehicle ranking has %d entries, want at most %d", len(dash.Vehicles), analytics.DefaultTopVehicles)
	}
	if !sort.SliceIsSorted(dash.Vehicles, func(i, j int) bool { return dash.Vehicles[i].Count > dash.Vehicles[j].Count }) {
		p.errorf("vehicle ranking is not sorted by count")
	}
	for _, v := range dash.Vehicles {
		fmt.Printf("  %-20s %d\n", v.Involved, v.Count)
	}
	return p
}
