package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCSVFilesFound means the data source contained no CSV files.
	ErrNoCSVFilesFound = errors.New("no CSV files found in data source")

	// ErrNoValidData means every discovered file failed to parse.
	ErrNoValidData = errors.New("no valid data files could be read")

	// ErrUnrecognizedSchema means a file header had none of the known columns.
	ErrUnrecognizedSchema = errors.New("header has no recognized columns")

	// ErrInvalidDateRange means more than two dates were supplied to a filter.
	ErrInvalidDateRange = errors.New("date range takes at most two dates")
)

// FileParseError reports a source file that could not be read. It is
// recoverable: the file is skipped and ingestion continues.
type FileParseError struct {
	Path string
	Err  error
}

func (e *FileParseError) Error() string {
	return fmt.Sprintf("could not read file %s: %v", e.Path, e.Err)
}

func (e *FileParseError) Unwrap() error { return e.Err }
