package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Column names of the reference table
const (
	ColState = "state"
	ColMin   = "postcode_min_range"
	ColMax   = "postcode_max_range"
)

// LoadFile opens a reference CSV and builds the table
func LoadFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference file %s: %w", path, err)
	}
	defer file.Close()

	table, err := LoadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("reference file %s: %w", path, err)
	}
	return table, nil
}

// LoadCSV reads the state, postcode_min_range and postcode_max_range columns
// from r. Column order does not matter and extra columns are ignored. A
// missing column or a non-integer range fails the whole load.
func LoadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrMalformed)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range []string{ColState, ColMin, ColMax} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, want)
		}
	}

	var intervals []Interval
	row := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, row, err)
		}

		lo, err := strconv.Atoi(strings.TrimSpace(rec[cols[ColMin]]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %s %q is not an integer", ErrMalformed, row, ColMin, rec[cols[ColMin]])
		}
		hi, err := strconv.Atoi(strings.TrimSpace(rec[cols[ColMax]]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %s %q is not an integer", ErrMalformed, row, ColMax, rec[cols[ColMax]])
		}

		intervals = append(intervals, Interval{
			State: rec[cols[ColState]],
			Min:   lo,
			Max:   hi,
		})
	}

	return NewTable(intervals)
}
