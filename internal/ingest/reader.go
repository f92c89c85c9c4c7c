package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
)

// columnAliases maps lower-cased, trimmed header names onto canonical columns.
var columnAliases = map[string]string{
	"city":          domain.ColumnCity,
	"municipality":  domain.ColumnCity,
	"date":          domain.ColumnDate,
	"time":          domain.ColumnTime,
	"involved":      domain.ColumnInvolved,
	"vehicle":       domain.ColumnInvolved,
	"vehicles":      domain.ColumnInvolved,
	"vehicle type":  domain.ColumnInvolved,
	"type":          domain.ColumnType,
	"incident type": domain.ColumnType,
	"latitude":      domain.ColumnLatitude,
	"lat":           domain.ColumnLatitude,
	"longitude":     domain.ColumnLongitude,
	"lon":           domain.ColumnLongitude,
	"lng":           domain.ColumnLongitude,
	"long":          domain.ColumnLongitude,
}

// missingMarkers are cell values treated as absent, in addition to "".
var missingMarkers = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {},
	"nan": {}, "null": {},
}

// FileResult is the parsed content of one source file.
type FileResult struct {
	Path    string
	Header  []string
	Records []domain.RawRecord
	HasType bool
}

// ReadFile reads and parses one CSV file. Every failure is returned as a
// *domain.FileParseError.
func ReadFile(path string) (FileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, &domain.FileParseError{Path: path, Err: err}
	}
	return Parse(path, bytes.NewReader(decodeLenient(data)))
}

// Parse reads CSV rows from r, which must already be UTF-8. The first row is
// the header. Rows may be shorter or longer than the header; missing cells are
// absent. Stray quotes in free-text cells are kept as literal characters.
func Parse(source string, r io.Reader) (FileResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return FileResult{}, &domain.FileParseError{Path: source, Err: errors.New("file is empty")}
	}
	if err != nil {
		return FileResult{}, &domain.FileParseError{Path: source, Err: fmt.Errorf("read header: %w", err)}
	}

	cols := mapColumns(header)
	if len(cols.canonical) == 0 {
		return FileResult{}, &domain.FileParseError{Path: source, Err: domain.ErrUnrecognizedSchema}
	}

	res := FileResult{
		Path:   source,
		Header: cols.names,
	}
	_, res.HasType = cols.canonical[domain.ColumnType]

	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return FileResult{}, &domain.FileParseError{Path: source, Err: err}
		}
		line++
		res.Records = append(res.Records, cols.record(row, source, line))
	}

	return res, nil
}

// columnMap locates canonical and extra columns in a header.
type columnMap struct {
	names     []string
	canonical map[string]int
	extra     map[string]int
}

func mapColumns(header []string) columnMap {
	cm := columnMap{
		names:     make([]string, len(header)),
		canonical: make(map[string]int),
		extra:     make(map[string]int),
	}
	for i, h := range header {
		name := strings.TrimSpace(h)
		cm.names[i] = name

		canon, ok := columnAliases[strings.ToLower(name)]
		if !ok {
			cm.extra[name] = i
			continue
		}
		if _, dup := cm.canonical[canon]; dup {
			cm.extra[name] = i
			continue
		}
		cm.canonical[canon] = i
	}
	return cm
}

func (cm columnMap) record(row []string, source string, line int) domain.RawRecord {
	rec := domain.RawRecord{
		City:      cm.cell(row, domain.ColumnCity),
		Date:      cm.cell(row, domain.ColumnDate),
		Time:      cm.cell(row, domain.ColumnTime),
		Involved:  cm.cell(row, domain.ColumnInvolved),
		Type:      cm.cell(row, domain.ColumnType),
		Latitude:  cm.cell(row, domain.ColumnLatitude),
		Longitude: cm.cell(row, domain.ColumnLongitude),
		Source:    source,
		Line:      line,
	}
	if len(cm.extra) > 0 {
		rec.Extra = make(map[string]string, len(cm.extra))
		for name, i := range cm.extra {
			if v := cellAt(row, i); v != nil {
				rec.Extra[name] = *v
			}
		}
	}
	return rec
}

func (cm columnMap) cell(row []string, column string) *string {
	i, ok := cm.canonical[column]
	if !ok {
		return nil
	}
	return cellAt(row, i)
}

func cellAt(row []string, i int) *string {
	if i >= len(row) {
		return nil
	}
	v := row[i]
	if v == "" {
		return nil
	}
	if _, missing := missingMarkers[v]; missing {
		return nil
	}
	return &v
}
