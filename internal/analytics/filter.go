package analytics

import (
	"fmt"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
)

// DateRange is an inclusive range of calendar days in UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls on or between Start and End.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// ResolveRange turns a partial date selection into a range. Two dates are
// used as given; one date selects that single day; no dates select the full
// span of the table. A start after the end is kept as-is and matches nothing.
func ResolveRange(table *domain.Table, dates []time.Time) (DateRange, error) {
	switch len(dates) {
	case 0:
		minDate, maxDate, _ := table.DateSpan()
		return DateRange{Start: minDate, End: maxDate}, nil
	case 1:
		d := truncateDay(dates[0])
		return DateRange{Start: d, End: d}, nil
	case 2:
		return DateRange{Start: truncateDay(dates[0]), End: truncateDay(dates[1])}, nil
	default:
		return DateRange{}, fmt.Errorf("%w: got %d", domain.ErrInvalidDateRange, len(dates))
	}
}

// Filter returns the records dated within r whose city is in cities, in
// table order. An empty city selection matches nothing.
func Filter(table *domain.Table, r DateRange, cities []string) []domain.IncidentRecord {
	if len(cities) == 0 {
		return nil
	}
	selected := make(map[string]struct{}, len(cities))
	for _, c := range cities {
		selected[c] = struct{}{}
	}

	var out []domain.IncidentRecord
	for _, rec := range table.Records {
		if !r.Contains(rec.Date) {
			continue
		}
		if _, ok := selected[rec.City]; !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
