package sanitize

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/intake-dedup/internal/metrics"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference"
	"github.com/intake-dedup/internal/reference/referencetest"
)

type SanitizerSuite struct {
	suite.Suite
	table     *reference.Table
	metrics   *metrics.Metrics
	sanitizer *Sanitizer
}

func TestSanitizerSuite(t *testing.T) {
	suite.Run(t, new(SanitizerSuite))
}

func (s *SanitizerSuite) SetupTest() {
	s.table = referencetest.Table(s.T())
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.sanitizer = New(s.table, s.metrics)
}

func noisyRecords() []patient.Record {
	return []patient.Record{
		{PatientID: "1", GivenName: "joshua", Surname: "elrick", RawDateOfBirth: "19800501", StreetNumber: patient.Int(0), Suburb: "2000", Postcode: "sydney", State: "nws"},
		{PatientID: "2", GivenName: "mia", Surname: "ryan", RawDateOfBirth: "19801301", Suburb: "melbourne", Postcode: "3000", State: "nsw"},
		{PatientID: "3", GivenName: "ava", Surname: "berry", Suburb: "hobart", Postcode: "7000"},
		{PatientID: "4", GivenName: "liam", Surname: "hall", Suburb: "nowhere", Postcode: "9999", State: "xyz"},
		{PatientID: "5", GivenName: "zoe", Surname: "lee", Suburb: "albury", Postcode: "3644"},
		{PatientID: "6", GivenName: "dup", Surname: "one"},
		{PatientID: "6", GivenName: "dup", Surname: "two"},
		{PatientID: "7", GivenName: "noah", Surname: "kim", Suburb: "3121", Postcode: "richmond", State: "VIC", StreetNumber: patient.Int(14)},
	}
}

func (s *SanitizerSuite) TestRunAppliesEveryStage() {
	set, err := s.sanitizer.Run(false, noisyRecords())
	s.Require().NoError(err)

	s.Equal([]string{"1", "2", "3", "4", "5", "7"}, set.IDs())

	r1, _ := set.Get("1")
	s.Equal("sydney", r1.Suburb)
	s.Equal("2000", r1.Postcode)
	s.Equal("nsw", r1.State)
	s.Nil(r1.StreetNumber)
	s.Equal("19800501", r1.DateOfBirthString())

	r2, _ := set.Get("2")
	s.Nil(r2.DateOfBirth)
	s.Equal("vic", r2.State, "nsw does not register 3000, so the state is dropped and re-inferred")
	s.Equal("3000", r2.Postcode)

	r3, _ := set.Get("3")
	s.Equal("tas", r3.State, "inferred from postcode")

	r4, _ := set.Get("4")
	s.Empty(r4.Postcode)
	s.Empty(r4.State)

	r5, _ := set.Get("5")
	s.Empty(r5.State, "3644 is registered for two states")

	r7, _ := set.Get("7")
	s.Equal("richmond", r7.Suburb)
	s.Equal("3121", r7.Postcode)
	s.Equal("vic", r7.State)
	s.Equal(14, *r7.StreetNumber)
}

func (s *SanitizerSuite) TestRunIsIdempotent() {
	once, err := s.sanitizer.Run(false, noisyRecords())
	s.Require().NoError(err)

	twice, err := s.sanitizer.Run(false, once.Clone().Records)
	s.Require().NoError(err)

	s.Equal(once.Records, twice.Records)
}

func (s *SanitizerSuite) TestRunEstablishesInvariants() {
	set, err := s.sanitizer.Run(false, noisyRecords())
	s.Require().NoError(err)

	for _, r := range set.Records {
		if r.State != "" {
			s.True(reference.IsState(r.State), "record %s has state %q", r.PatientID, r.State)
		}
		if r.Postcode != "" {
			s.True(s.table.ValidPostcode(r.Postcode), "record %s has postcode %q", r.PatientID, r.Postcode)
		}
		if r.State != "" && r.Postcode != "" {
			ok, err := s.table.ValidStatePostcode(r.State, r.Postcode)
			s.Require().NoError(err)
			s.True(ok, "record %s state and postcode disagree", r.PatientID)
		}
	}
}

func (s *SanitizerSuite) TestRunReportsMetrics() {
	_, err := s.sanitizer.Run(false, noisyRecords())
	s.Require().NoError(err)

	s.Equal(2.0, testutil.ToFloat64(s.metrics.RecordsDropped))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.SanitizedFields.WithLabelValues("repair_suburb_postcode")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SanitizedFields.WithLabelValues("null_invalid_postcodes")))
}

func (s *SanitizerSuite) TestRunFailsOnStateMissingFromTable() {
	table, err := reference.NewTable([]reference.Interval{{State: "nsw", Min: 2000, Max: 2999}})
	s.Require().NoError(err)

	_, err = New(table, nil).Run(false, []patient.Record{{PatientID: "1", State: "vic", Postcode: "2000"}})
	s.ErrorIs(err, reference.ErrUnknownState)
	s.Contains(err.Error(), "null_incoherent_states")
}
