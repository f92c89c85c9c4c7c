package domain

import (
	"sort"
	"time"
)

// Column names the normalizer understands. Source files may carry any subset.
const (
	ColumnCity      = "City"
	ColumnDate      = "Date"
	ColumnTime      = "Time"
	ColumnInvolved  = "Involved"
	ColumnType      = "Type"
	ColumnLatitude  = "Latitude"
	ColumnLongitude = "Longitude"
)

// Unknown is the placeholder for missing city and vehicle values.
const Unknown = "Unknown"

// RawRecord is one row from one source file. Each canonical column is nil
// when the file lacks the column or the cell is empty.
type RawRecord struct {
	City      *string
	Date      *string
	Time      *string
	Involved  *string
	Type      *string
	Latitude  *string
	Longitude *string

	// Extra holds the non-canonical columns of the source file.
	Extra map[string]string

	Source string
	Line   int
}

// Point is a WGS-84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IncidentRecord is a normalized traffic incident. Date, Latitude and
// Longitude are always set; City and Involved are never empty.
type IncidentRecord struct {
	ID           string     `json:"id"`
	City         string     `json:"city"`
	Date         time.Time  `json:"date"`
	TimeOfDay    *TimeOfDay `json:"time_of_day,omitempty"`
	Hour         *int       `json:"hour,omitempty"`
	Involved     string     `json:"involved"`
	IncidentType *string    `json:"incident_type,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	MonthBucket  string     `json:"month_bucket"`
	Source       string     `json:"source,omitempty"`
}

// DayName returns the weekday of the incident date, e.g. "Monday".
func (r IncidentRecord) DayName() string {
	return r.Date.Weekday().String()
}

// DropReason identifies why a raw row did not make it into the table.
type DropReason string

const (
	DropNone        DropReason = ""
	DropDate        DropReason = "date"
	DropCoordinates DropReason = "coordinates"
)

// DropCounts tallies dropped rows by reason.
type DropCounts map[DropReason]int

// FileWarning records a source file that was skipped.
type FileWarning struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Table is the unified, normalized dataset built from one set of source files.
// It is immutable once built.
type Table struct {
	Records         []IncidentRecord
	HasIncidentType bool
	Sources         []string
	Warnings        []FileWarning
	Dropped         DropCounts
	RowsRead        int
	Fingerprint     string
	LoadedAt        time.Time
}

// DateSpan returns the earliest and latest incident dates. ok is false for an
// empty table.
func (t *Table) DateSpan() (minDate, maxDate time.Time, ok bool) {
	for i, r := range t.Records {
		if i == 0 || r.Date.Before(minDate) {
			minDate = r.Date
		}
		if i == 0 || r.Date.After(maxDate) {
			maxDate = r.Date
		}
	}
	return minDate, maxDate, len(t.Records) > 0
}

// Cities returns the distinct city names in ascending order.
func (t *Table) Cities() []string {
	seen := make(map[string]struct{})
	var cities []string
	for _, r := range t.Records {
		if _, ok := seen[r.City]; ok {
			continue
		}
		seen[r.City] = struct{}{}
		cities = append(cities, r.City)
	}
	sort.Strings(cities)
	return cities
}

// DefaultCities returns the first n cities of Cities, the initial selection
// offered to users.
func (t *Table) DefaultCities(n int) []string {
	cities := t.Cities()
	if n < 0 || n >= len(cities) {
		return cities
	}
	return cities[:n]
}
