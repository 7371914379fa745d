package ingest

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intake-dedup/internal/patient"
)

const sample = `patient_id,given_name,surname,date_of_birth,street_number,address_1,address_2,suburb,postcode,state,age,phone_number
1,joshua,elrick,19800501,12,paine st,,sydney,2000,nsw,44,02 9876 5432
2,mia,ryan,1980xx01,abc,,unit 4,3000,melbourne,vic,-3,
3,ava,berry,,7.0,,,,7000,,22.0,0362000000
`

func TestRead(t *testing.T) {
	records, stats, err := NewImporter(zerolog.Nop()).Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, ImportStats{Imported: 3}, stats)
	require.Len(t, records, 3)

	r := records[0]
	assert.Equal(t, "1", r.PatientID)
	assert.Equal(t, "19800501", r.RawDateOfBirth)
	assert.Nil(t, r.DateOfBirth, "dates are parsed by the sanitizer")
	assert.Equal(t, 12, *r.StreetNumber)
	assert.Equal(t, 44, *r.Age)
	assert.Equal(t, "02 9876 5432", r.PhoneNumber)

	r = records[1]
	assert.Equal(t, "1980xx01", r.RawDateOfBirth)
	assert.Nil(t, r.StreetNumber)
	assert.Nil(t, r.Age, "negative ages are unknown")
	assert.Equal(t, "3000", r.Suburb, "transpositions are left for the sanitizer")
	assert.Equal(t, "unit 4", r.Address2)

	r = records[2]
	assert.Equal(t, 7, *r.StreetNumber)
	assert.Equal(t, 22, *r.Age)
}

func TestReadColumnOrderAndMissingColumns(t *testing.T) {
	in := "\ufeffSurname, Patient_ID\nlee,9\n"

	records, _, err := NewImporter(zerolog.Nop()).Read(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "9", records[0].PatientID)
	assert.Equal(t, "lee", records[0].Surname)
	assert.Empty(t, records[0].GivenName)
}

func TestReadSkipsBadRows(t *testing.T) {
	in := "patient_id,surname\n1,lee\n2\n,kim\n3,hall\n"

	records, stats, err := NewImporter(zerolog.Nop()).Read(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, ImportStats{Imported: 2, Skipped: 2}, stats)
	assert.Equal(t, "1", records[0].PatientID)
	assert.Equal(t, "3", records[1].PatientID)
}

func TestReadRequiresPatientID(t *testing.T) {
	_, _, err := NewImporter(zerolog.Nop()).Read(strings.NewReader("given_name,surname\na,b\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, _, err = NewImporter(zerolog.Nop()).Read(strings.NewReader(""))
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	dob := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	records := []patient.Record{
		{PatientID: "1", GivenName: "joshua", Surname: "elrick", DateOfBirth: &dob, StreetNumber: patient.Int(12), Postcode: "2000", State: "nsw", DedupID: "1"},
		{PatientID: "2", GivenName: "o'brien, jr", Age: patient.Int(5), DedupID: "1"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records))

	want := "patient_id,given_name,surname,date_of_birth,street_number,address_1,address_2,suburb,postcode,state,age,phone_number,dedup_id\n" +
		"1,joshua,elrick,19800501,12,,,,2000,nsw,,,1\n" +
		"2,\"o'brien, jr\",,,,,,,,,5,,1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	records := []patient.Record{
		{PatientID: "7", Surname: "kim", StreetNumber: patient.Int(14), DedupID: "7"},
	}
	require.NoError(t, WriteFile(path, records))

	back, stats, err := NewImporter(zerolog.Nop()).ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, "kim", back[0].Surname)
	assert.Equal(t, 14, *back[0].StreetNumber)

	_, _, err = NewImporter(zerolog.Nop()).ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
