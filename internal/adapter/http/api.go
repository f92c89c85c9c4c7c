package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/analytics"
	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
)

type citiesResponse struct {
	Cities   []string `json:"cities"`
	Defaults []string `json:"defaults"`
}

type incidentsResponse struct {
	Range     analytics.DateRange     `json:"range"`
	Count     int                     `json:"count"`
	Incidents []domain.IncidentRecord `json:"incidents"`
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	all, defaults, err := s.svc.Cities(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, citiesResponse{Cities: all, Defaults: defaults})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dash, err := s.svc.Dashboard(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dash, err := s.svc.Dashboard(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	records := dash.Records
	if records == nil {
		records = []domain.IncidentRecord{}
	}
	writeJSON(w, http.StatusOK, incidentsResponse{
		Range:     dash.Range,
		Count:     len(records),
		Incidents: records,
	})
}

// writeServiceError maps a service failure to a status code. Ingestion
// failures leave nothing to query, so they surface as 503.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidDateRange) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusServiceUnavailable, err)
}

// parseQuery reads start, end, city and top parameters. Cities are
// normalized the same way as the data. A missing city parameter selects the
// default cities; city present with no usable value selects none.
func parseQuery(values url.Values) (analytics.Query, error) {
	var q analytics.Query

	for _, key := range []string{"start", "end"} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		d, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
		if err != nil {
			return analytics.Query{}, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", key, raw)
		}
		q.Dates = append(q.Dates, d)
	}

	if raw, ok := values["city"]; ok {
		q.Cities = []string{}
		for _, c := range raw {
			if strings.TrimSpace(c) != "" {
				q.Cities = append(q.Cities, domain.NormalizeCity(&c))
			}
		}
	}

	if raw := values.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return analytics.Query{}, fmt.Errorf("invalid top %q: expected a positive integer", raw)
		}
		q.TopVehicles = n
	}

	return q, nil
}
