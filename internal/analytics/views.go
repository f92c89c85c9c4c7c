package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// NotAvailable is shown for categorical metrics with no data.
const NotAvailable = "N/A"

// DefaultTopVehicles is the length of the vehicle ranking.
const DefaultTopVehicles = 10

// weekOrder is the display order of the hour-by-day matrix.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Summary holds the headline numbers for a selection.
type Summary struct {
	TotalIncidents  int    `json:"total_incidents"`
	TopCity         string `json:"top_city"`
	TopIncidentType string `json:"top_incident_type"`
	PeakHour        string `json:"peak_hour"`
}

// GeoDensity is the point cloud for the incident heat map. Center is nil when
// there are no points, in which case the map is not drawn.
type GeoDensity struct {
	Points []domain.Point `json:"points"`
	Center *domain.Point  `json:"center,omitempty"`
}

// TrendPoint is the incident count for one month.
type TrendPoint struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// DayRow holds the per-hour incident counts for one weekday.
type DayRow struct {
	Day    string  `json:"day"`
	Counts [24]int `json:"counts"`
}

// MatrixCell is one non-empty (day, hour) bucket.
type MatrixCell struct {
	Day   string `json:"day"`
	Hour  int    `json:"hour"`
	Count int    `json:"count"`
}

// Matrix is the hour-by-weekday incident grid. Rows run Monday to Sunday and
// all seven are present whenever the input is non-empty.
type Matrix struct {
	Rows []DayRow `json:"rows"`
}

// Cells returns the non-zero buckets in display order.
func (m Matrix) Cells() []MatrixCell {
	var cells []MatrixCell
	for _, row := range m.Rows {
		for h, n := range row.Counts {
			if n > 0 {
				cells = append(cells, MatrixCell{Day: row.Day, Hour: h, Count: n})
			}
		}
	}
	return cells
}

// RankEntry is one row of the vehicle ranking.
type RankEntry struct {
	Involved string `json:"involved"`
	Count    int    `json:"count"`
}

// Summarize computes the headline metrics. The top incident type is only
// reported when the source data carried an incident type column.
func Summarize(records []domain.IncidentRecord, hasIncidentType bool) Summary {
	s := Summary{
		TotalIncidents:  len(records),
		TopCity:         NotAvailable,
		TopIncidentType: NotAvailable,
		PeakHour:        NotAvailable,
	}

	cities := newTally[string]()
	types := newTally[string]()
	hours := newTally[int]()
	for _, r := range records {
		cities.add(r.City)
		if r.IncidentType != nil {
			types.add(*r.IncidentType)
		}
		if r.Hour != nil {
			hours.add(*r.Hour)
		}
	}

	if city, ok := cities.mode(); ok {
		s.TopCity = city
	}
	if t, ok := types.mode(); ok && hasIncidentType {
		s.TopIncidentType = t
	}
	if h, ok := hours.mode(); ok {
		s.PeakHour = strconv.Itoa(h) + ":00"
	}
	return s
}

// Density collects incident coordinates and their mean as the map center.
func Density(records []domain.IncidentRecord) GeoDensity {
	if len(records) == 0 {
		return GeoDensity{Points: []domain.Point{}}
	}

	points := make([]domain.Point, len(records))
	lats := make([]float64, len(records))
	lons := make([]float64, len(records))
	for i, r := range records {
		points[i] = domain.Point{Lat: r.Latitude, Lon: r.Longitude}
		lats[i] = r.Latitude
		lons[i] = r.Longitude
	}
	return GeoDensity{
		Points: points,
		Center: &domain.Point{Lat: stat.Mean(lats, nil), Lon: stat.Mean(lons, nil)},
	}
}

// MonthlyTrend counts incidents per month bucket in chronological order.
func MonthlyTrend(records []domain.IncidentRecord) []TrendPoint {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.MonthBucket]++
	}

	trend := make([]TrendPoint, 0, len(counts))
	for month, n := range counts {
		trend = append(trend, TrendPoint{Month: month, Count: n})
	}
	// "YYYY-MM" sorts chronologically as a string.
	sort.Slice(trend, func(i, j int) bool { return trend[i].Month < trend[j].Month })
	return trend
}

// HourDayMatrix counts incidents by weekday and hour. Records without an hour
// are left out. Empty input yields a matrix with no rows.
func HourDayMatrix(records []domain.IncidentRecord) Matrix {
	if len(records) == 0 {
		return Matrix{Rows: []DayRow{}}
	}

	var grid [7][24]int
	for _, r := range records {
		if r.Hour == nil {
			continue
		}
		grid[r.Date.Weekday()][*r.Hour]++
	}

	rows := make([]DayRow, 0, len(weekOrder))
	for _, wd := range weekOrder {
		rows = append(rows, DayRow{Day: wd.String(), Counts: grid[wd]})
	}
	return Matrix{Rows: rows}
}

// VehicleRanking returns the n most frequent Involved values, highest count
// first. Equal counts keep the order in which the values first appear.
func VehicleRanking(records []domain.IncidentRecord, n int) []RankEntry {
	t := newTally[string]()
	for _, r := range records {
		t.add(r.Involved)
	}

	ranked := t.ranked()
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]RankEntry, len(ranked))
	for i, kc := range ranked {
		out[i] = RankEntry{Involved: kc.key, Count: kc.count}
	}
	return out
}

// tally counts values and remembers the order they were first seen in, so
// ties always resolve the same way for the same input.
type tally[K comparable] struct {
	index  map[K]int
	counts []keyCount[K]
}

type keyCount[K comparable] struct {
	key   K
	count int
}

func newTally[K comparable]() *tally[K] {
	return &tally[K]{index: make(map[K]int)}
}

func (t *tally[K]) add(k K) {
	i, ok := t.index[k]
	if !ok {
		i = len(t.counts)
		t.index[k] = i
		t.counts = append(t.counts, keyCount[K]{key: k})
	}
	t.counts[i].count++
}

// mode returns the most frequent value; ties go to the value seen first.
func (t *tally[K]) mode() (K, bool) {
	var best keyCount[K]
	for i, kc := range t.counts {
		if i == 0 || kc.count > best.count {
			best = kc
		}
	}
	return best.key, len(t.counts) > 0
}

// ranked returns all values by count descending, first-seen order on ties.
func (t *tally[K]) ranked() []keyCount[K] {
	out := append([]keyCount[K](nil), t.counts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}
