// Command genmock writes a reproducible mock MMDA incident dataset for local
// development and manual testing of the dashboard service. The output mirrors
// the quirks of the real exports: yearly files with differing column sets,
// lower-case and blank city names, missing coordinates, unparseable dates, a
// Windows-1252 encoded file and a file that is not valid CSV at all.
//
// After writing, the dataset is loaded through the real ingest package and a
// summary is printed so test assertions can be updated from it.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -rows 400 -seed 2023
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/ingest"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type city struct {
	name     string
	lat, lon float64
}

var cities = []city{
	{"Caloocan", 14.6507, 120.9676},
	{"Las Piñas", 14.4445, 120.9939},
	{"Makati", 14.5547, 121.0244},
	{"Mandaluyong", 14.5794, 121.0359},
	{"Manila", 14.5995, 120.9842},
	{"Marikina", 14.6507, 121.1029},
	{"Parañaque", 14.4793, 121.0198},
	{"Pasay", 14.5378, 121.0014},
	{"Pasig", 14.5764, 121.0851},
	{"Quezon City", 14.6760, 121.0437},
	{"San Juan", 14.6019, 121.0355},
	{"Taguig", 14.5176, 121.0509},
}

var (
	vehicles      = []string{"Car", "Motorcycle", "Jeepney", "Bus", "Truck", "SUV", "Van", "Taxi", "Tricycle", "AUV", "Bicycle", "Pedestrian"}
	incidentTypes = []string{"Vehicular Accident", "Stalled Vehicle", "Road Crash", "Disabled Vehicle", "Flooding"}
)

// fileDef describes one generated file.
type fileDef struct {
	name    string
	year    int
	header  []string
	dateFmt string
	cp1252  bool
}

var defs = []fileDef{
	{
		name:    "mmda_incidents_2021.csv",
		year:    2021,
		header:  []string{"Date", "Time", "City", "Location", "Involved", "Type", "Latitude", "Longitude"},
		dateFmt: "01/02/2006",
	},
	{
		name:    "mmda_incidents_2022.csv",
		year:    2022,
		header:  []string{"Date", "Time", "City", "Vehicle", "Lat", "Lng", "Direction"},
		dateFmt: "2006-01-02",
	},
	{
		name:    "mmda_incidents_2023.csv",
		year:    2023,
		header:  []string{" Date ", "Time", "Municipality", "Involved", "Incident Type", "Latitude", "Longitude"},
		dateFmt: "January 2, 2006",
		cp1252:  true,
	},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "directory to write the mock CSV files to")
	rows := flag.Int("rows", 400, "data rows per yearly file")
	seed := flag.Uint64("seed", 2023, "random seed")
	flag.Parse()

	if *rows < 1 {
		flag.Usage()
		return fmt.Errorf("-rows must be positive")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	// Fixed clock so LoadedAt in the printed summary is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	paths := make([]string, 0, len(defs)+1)
	for _, d := range defs {
		path := filepath.Join(*out, d.name)
		if err := writeFile(path, d, generateRows(rng, d, *rows)); err != nil {
			return fmt.Errorf("writing %s: %w", d.name, err)
		}
		log.Printf("wrote %s (%d rows)", path, *rows)
		paths = append(paths, path)
	}

	broken := filepath.Join(*out, "mmda_incidents_export_broken.csv")
	// A spreadsheet saved with a .csv extension: no recognizable header.
	if err := os.WriteFile(broken, []byte("PK\x03\x04\x14\x00\x06\x00\x08\x00\n[Content_Types].xml\xa1\x00\n"), 0o600); err != nil {
		return err
	}
	log.Printf("wrote %s (malformed)", broken)
	paths = append(paths, broken)

	return printSummary(paths)
}

// generateRows produces data rows in header order. Roughly 3% of rows get an
// unparseable date, 4% lose their coordinates, 5% lose the time and city
// names are randomly lower-cased or blanked.
func generateRows(rng *rand.Rand, d fileDef, n int) [][]string {
	start := time.Date(d.year, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := start.AddDate(1, 0, 0).Sub(start).Hours() / 24

	out := make([][]string, 0, n)
	for range n {
		c := cities[rng.IntN(len(cities))]
		date := start.AddDate(0, 0, rng.IntN(int(days)))
		hour := peakHour(rng)

		fields := map[string]string{
			"date":      date.Format(d.dateFmt),
			"time":      clockTime(hour, rng.IntN(60)),
			"city":      c.name,
			"involved":  vehicles[rng.IntN(len(vehicles))],
			"type":      incidentTypes[rng.IntN(len(incidentTypes))],
			"lat":       fmt.Sprintf("%.6f", c.lat+(rng.Float64()-0.5)*0.03),
			"lon":       fmt.Sprintf("%.6f", c.lon+(rng.Float64()-0.5)*0.03),
			"location":  fmt.Sprintf("EDSA near %s", c.name),
			"direction": []string{"NB", "SB", "EB", "WB"}[rng.IntN(4)],
		}

		switch p := rng.Float64(); {
		case p < 0.03:
			fields["date"] = "TBA"
		case p < 0.07:
			fields["lat"], fields["lon"] = "", ""
		case p < 0.12:
			fields["time"] = ""
		}
		switch p := rng.Float64(); {
		case p < 0.15:
			fields["city"] = strings.ToLower(fields["city"])
		case p < 0.18:
			fields["city"] = "  "
		}

		row := make([]string, len(d.header))
		for i, h := range d.header {
			row[i] = fields[columnKey(h)]
		}
		out = append(out, row)
	}
	return out
}

// peakHour skews hours towards the morning and evening rush.
func peakHour(rng *rand.Rand) int {
	switch p := rng.Float64(); {
	case p < 0.3:
		return 6 + rng.IntN(4)
	case p < 0.6:
		return 16 + rng.IntN(4)
	default:
		return rng.IntN(24)
	}
}

func clockTime(hour, minute int) string {
	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, meridiem)
}

func columnKey(header string) string {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "date":
		return "date"
	case "time":
		return "time"
	case "city", "municipality":
		return "city"
	case "involved", "vehicle":
		return "involved"
	case "type", "incident type":
		return "type"
	case "latitude", "lat":
		return "lat"
	case "longitude", "lng":
		return "lon"
	case "location":
		return "location"
	case "direction":
		return "direction"
	}
	return ""
}

func writeFile(path string, d fileDef, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.WriteCloser = nopCloser{f}
	if d.cp1252 {
		w = transform.NewWriter(f, charmap.Windows1252.NewEncoder())
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(d.header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	// Closing the encoder flushes any buffered bytes; the file stays open.
	if err := w.Close(); err != nil {
		return err
	}
	return f.Sync()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type cityCount struct {
	city  string
	count int
}

func printSummary(paths []string) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := ingest.NewLoader(len(paths), logger, observability.NewMetricsForTesting())
	table, err := loader.Load(context.Background(), paths)
	if err != nil {
		return fmt.Errorf("loading generated dataset: %w", err)
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Rows read: %d\n", table.RowsRead)
	fmt.Printf("Records: %d\n", len(table.Records))
	fmt.Printf("Dropped: date=%d, coordinates=%d\n",
		table.Dropped[domain.DropDate], table.Dropped[domain.DropCoordinates])
	for _, w := range table.Warnings {
		fmt.Printf("Skipped: %s (%s)\n", w.Path, w.Error)
	}

	first, last, _ := table.DateSpan()
	fmt.Printf("Date span: %s .. %s\n", first.Format(time.DateOnly), last.Format(time.DateOnly))
	fmt.Printf("Default cities: %s\n", strings.Join(table.DefaultCities(5), ", "))

	counts := map[string]int{}
	for i := range table.Records {
		counts[table.Records[i].City]++
	}
	cc := make([]cityCount, 0, len(counts))
	for c, n := range counts {
		cc = append(cc, cityCount{c, n})
	}
	sort.Slice(cc, func(i, j int) bool {
		if cc[i].count != cc[j].count {
			return cc[i].count > cc[j].count
		}
		return cc[i].city < cc[j].city
	})
	fmt.Printf("Cities (%d): ", len(cc))
	for _, c := range cc {
		fmt.Printf("%s=%d ", c.city, c.count)
	}
	fmt.Println()
	return nil
}
