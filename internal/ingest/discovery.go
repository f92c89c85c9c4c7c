package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
)

// Discover lists the CSV files directly inside dir, sorted by name.
// It returns domain.ErrNoCSVFilesFound when there are none.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoCSVFilesFound, dir)
	}
	return paths, nil
}
