// Package analytics filters the unified incident table and computes the
// views shown on the dashboard. Every function here is a pure function of
// its inputs; the table is never modified.
package analytics

import (
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
)

// Query is a user selection: zero, one or two dates and a set of cities.
type Query struct {
	Dates       []time.Time
	Cities      []string
	TopVehicles int
}

// Dashboard bundles the filtered selection with all of its views.
type Dashboard struct {
	Range    DateRange               `json:"range"`
	Cities   []string                `json:"cities"`
	Summary  Summary                 `json:"summary"`
	Density  GeoDensity              `json:"density"`
	Trend    []TrendPoint            `json:"trend"`
	Matrix   Matrix                  `json:"matrix"`
	Vehicles []RankEntry             `json:"vehicles"`
	Records  []domain.IncidentRecord `json:"-"`
}

// Build filters the table by q and computes every view from the result.
func Build(table *domain.Table, q Query) (Dashboard, error) {
	r, err := ResolveRange(table, q.Dates)
	if err != nil {
		return Dashboard{}, err
	}

	top := q.TopVehicles
	if top <= 0 {
		top = DefaultTopVehicles
	}

	records := Filter(table, r, q.Cities)
	cities := q.Cities
	if cities == nil {
		cities = []string{}
	}
	return Dashboard{
		Range:    r,
		Cities:   cities,
		Summary:  Summarize(records, table.HasIncidentType),
		Density:  Density(records),
		Trend:    MonthlyTrend(records),
		Matrix:   HourDayMatrix(records),
		Vehicles: VehicleRanking(records, top),
		Records:  records,
	}, nil
}
