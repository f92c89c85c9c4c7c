package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
)

// clockTimeRe matches the 12-hour "H:MM AM" time format used by the MMDA
// incident logs. The separator before the meridiem must be whitespace.
var clockTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})\s+([AaPp][Mm])$`)

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for the HH:MM:SS form.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := time.Parse(time.TimeOnly, string(b))
	if err != nil {
		return fmt.Errorf("parse time of day %q: %w", b, err)
	}
	*t = TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}
	return nil
}

// Normalize converts a raw row into an IncidentRecord. When the row cannot be
// used it returns the reason and false; the caller drops it.
func Normalize(raw RawRecord) (IncidentRecord, DropReason, bool) {
	date, ok := ParseDate(raw.Date)
	if !ok {
		return IncidentRecord{}, DropDate, false
	}

	lat, latOK := parseCoordinate(raw.Latitude)
	lon, lonOK := parseCoordinate(raw.Longitude)
	if !latOK || !lonOK {
		return IncidentRecord{}, DropCoordinates, false
	}

	tod := ParseTimeOfDay(raw.Time)

	rec := IncidentRecord{
		City:         NormalizeCity(raw.City),
		Date:         date,
		TimeOfDay:    tod,
		Hour:         DeriveHour(tod),
		Involved:     valueOrUnknown(raw.Involved),
		IncidentType: raw.Type,
		Latitude:     lat,
		Longitude:    lon,
		MonthBucket:  MonthBucket(date),
		Source:       raw.Source,
	}
	rec.ID = generateID(raw.Source, raw.Line, rec.City, date, raw.Time, lat, lon)
	return rec, DropNone, true
}

// NormalizeCity title-cases and trims a city name. Missing or blank names
// become Unknown.
func NormalizeCity(city *string) string {
	if city == nil {
		return Unknown
	}
	s := strings.TrimSpace(titleCase(*city))
	if s == "" {
		return Unknown
	}
	return s
}

// titleCase upper-cases the first cased letter of every word and lower-cases
// the rest. Any non-letter starts a new word, so "o'neil" becomes "O'Neil".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevCased := false
	for _, r := range s {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		switch {
		case cased && prevCased:
			b.WriteRune(unicode.ToLower(r))
		case cased:
			b.WriteRune(unicode.ToTitle(r))
		default:
			b.WriteRune(r)
		}
		prevCased = cased
	}
	return b.String()
}

// minDateYear is the earliest year ParseDate accepts. Numeric junk such as
// "1.5" otherwise parses as a date in year 0.
const minDateYear = 1900

// ParseDate parses a date in any of the common textual layouts and truncates
// it to midnight UTC. Ambiguous numeric dates are read month first, falling
// back to day first when the month would be out of range. Dates before
// minDateYear are rejected.
func ParseDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(v, time.UTC, dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil || t.Year() < minDateYear {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// ParseTimeOfDay parses "H:MM AM/PM". Anything else yields nil.
func ParseTimeOfDay(s *string) *TimeOfDay {
	if s == nil {
		return nil
	}
	m := clockTimeRe.FindStringSubmatch(strings.TrimSpace(*s))
	if m == nil {
		return nil
	}

	hour, errH := strconv.Atoi(m[1])
	mins, errM := strconv.Atoi(m[2])
	if errH != nil || errM != nil || hour < 1 || hour > 12 || mins > 59 {
		return nil
	}

	hour %= 12
	if strings.EqualFold(m[3], "PM") {
		hour += 12
	}
	return &TimeOfDay{Hour: hour, Minute: mins}
}

// DeriveHour formats the time of day as text and parses the hour back out of
// it. A time whose text form does not parse yields no hour.
func DeriveHour(tod *TimeOfDay) *int {
	if tod == nil {
		return nil
	}
	t, err := time.Parse(time.TimeOnly, tod.String())
	if err != nil {
		return nil
	}
	h := t.Hour()
	return &h
}

// MonthBucket returns the sortable "YYYY-MM" label for a date.
func MonthBucket(date time.Time) string {
	return date.Format("2006-01")
}

func valueOrUnknown(s *string) string {
	if s == nil {
		return Unknown
	}
	return *s
}

// parseCoordinate parses a latitude or longitude. Missing, non-numeric and
// non-finite values are rejected.
func parseCoordinate(s *string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// incidentNamespace scopes the name-based UUIDs of incident records.
var incidentNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("traffic-incident"))

// generateID produces a deterministic UUIDv5 from the row's origin and key
// fields, so reloading the same files yields the same IDs.
func generateID(source string, line int, city string, date time.Time, timeStr *string, lat, lon float64) string {
	t := ""
	if timeStr != nil {
		t = *timeStr
	}
	input := fmt.Sprintf("%s|%d|%s|%s|%s|%.6f|%.6f", source, line, city, date.Format(time.DateOnly), t, lat, lon)
	return uuid.NewSHA1(incidentNamespace, []byte(input)).String()
}
