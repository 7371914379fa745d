// Package ingest reads intake records from CSV and writes deduplicated
// records back out
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/intake-dedup/internal/patient"
)

// Record CSV columns, in output order
const (
	ColPatientID    = "patient_id"
	ColGivenName    = "given_name"
	ColSurname      = "surname"
	ColDateOfBirth  = "date_of_birth"
	ColStreetNumber = "street_number"
	ColAddress1     = "address_1"
	ColAddress2     = "address_2"
	ColSuburb       = "suburb"
	ColPostcode     = "postcode"
	ColState        = "state"
	ColAge          = "age"
	ColPhoneNumber  = "phone_number"
	ColDedupID      = "dedup_id"
)

// Columns is the input header; output adds ColDedupID
var Columns = []string{
	ColPatientID, ColGivenName, ColSurname, ColDateOfBirth, ColStreetNumber,
	ColAddress1, ColAddress2, ColSuburb, ColPostcode, ColState, ColAge, ColPhoneNumber,
}

// ErrMissingColumn is returned when the header lacks patient_id
var ErrMissingColumn = errors.New("missing column")

// Importer reads record CSVs. Rows that cannot be read are logged and
// skipped; only header problems fail the import.
type Importer struct {
	logger zerolog.Logger
}

// NewImporter creates an importer logging skipped rows to logger
func NewImporter(logger zerolog.Logger) *Importer {
	return &Importer{logger: logger.With().Str("component", "ingest").Logger()}
}

// ImportStats counts the outcome of one import
type ImportStats struct {
	Imported int
	Skipped  int
}

// ReadFile imports the record CSV at path
func (im *Importer) ReadFile(path string) ([]patient.Record, ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ImportStats{}, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	records, stats, err := im.Read(f)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	return records, stats, nil
}

// Read imports records from r. Columns may come in any order and any
// column other than patient_id may be absent. date_of_birth is kept raw
// for the sanitizer; street_number and age that are not non-negative
// integers are read as unknown.
func (im *Importer) Read(r io.Reader) ([]patient.Record, ImportStats, error) {
	reader := csv.NewReader(r)
	stats := ImportStats{}

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols[ColPatientID]; !ok {
		return nil, stats, fmt.Errorf("%w %s", ErrMissingColumn, ColPatientID)
	}

	get := func(row []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []patient.Record
	for n := 1; ; n++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			im.logger.Warn().Err(err).Int("row", n).Msg("skipping unreadable row")
			stats.Skipped++
			continue
		}

		id := strings.TrimSpace(get(row, ColPatientID))
		if id == "" {
			im.logger.Warn().Int("row", n).Msg("skipping row without patient_id")
			stats.Skipped++
			continue
		}

		records = append(records, patient.Record{
			PatientID:      id,
			GivenName:      get(row, ColGivenName),
			Surname:        get(row, ColSurname),
			RawDateOfBirth: strings.TrimSpace(get(row, ColDateOfBirth)),
			StreetNumber:   parseCount(get(row, ColStreetNumber)),
			Address1:       get(row, ColAddress1),
			Address2:       get(row, ColAddress2),
			Suburb:         get(row, ColSuburb),
			Postcode:       get(row, ColPostcode),
			State:          get(row, ColState),
			Age:            parseCount(get(row, ColAge)),
			PhoneNumber:    get(row, ColPhoneNumber),
		})
		stats.Imported++
	}

	im.logger.Info().
		Int("imported", stats.Imported).
		Int("skipped", stats.Skipped).
		Msg("import complete")

	return records, stats, nil
}

// parseCount converts s to a non-negative int pointer, nil if it is not one.
// Spreadsheet exports often carry "12.0", which is accepted.
func parseCount(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, ".0")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// WriteFile writes records to path, replacing any existing file
func WriteFile(path string, records []patient.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}

	if err := Write(f, records); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Write writes records as CSV with the input columns plus dedup_id
func Write(w io.Writer, records []patient.Record) error {
	writer := csv.NewWriter(w)

	header := append(append([]string(nil), Columns...), ColDedupID)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		if err := writer.Write(recordToRow(r)); err != nil {
			return fmt.Errorf("failed to write record %s: %w", r.PatientID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func recordToRow(r patient.Record) []string {
	return []string{
		r.PatientID,
		r.GivenName,
		r.Surname,
		r.DateOfBirthString(),
		formatInt(r.StreetNumber),
		r.Address1,
		r.Address2,
		r.Suburb,
		r.Postcode,
		r.State,
		formatInt(r.Age),
		r.PhoneNumber,
		r.DedupID,
	}
}

func formatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
