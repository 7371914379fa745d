package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intake-dedup/internal/match"
	"github.com/intake-dedup/internal/metrics"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference/referencetest"
)

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Table == nil {
		cfg.Table = referencetest.Table(t)
	}
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

func dedupIDs(res *Result) map[string]string {
	out := make(map[string]string, len(res.Records))
	for _, r := range res.Records {
		out[r.PatientID] = r.DedupID
	}
	return out
}

func TestRunMergesNearDuplicates(t *testing.T) {
	records := []patient.Record{
		{PatientID: "1", GivenName: "joshua", Surname: "elrick", Postcode: "2000", PhoneNumber: "02 9876 5432", StreetNumber: patient.Int(12), Age: patient.Int(44)},
		{PatientID: "2", GivenName: "joshau", Surname: "elrick", Postcode: "2000", PhoneNumber: "0298765432", StreetNumber: patient.Int(12), Age: patient.Int(44)},
		{PatientID: "3", GivenName: "ava", Surname: "berry", Postcode: "7000", PhoneNumber: "0362000000", StreetNumber: patient.Int(3), Age: patient.Int(22)},
	}

	res, err := newPipeline(t, Config{Workers: 2}).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"1": "1", "2": "1", "3": "3"}, dedupIDs(res))
	assert.Equal(t, 2, res.Stats.Clusters)
	assert.Equal(t, 1, res.Stats.Edges, "the same pair found by every pass is one edge")
	assert.Equal(t, 2, res.Stats.Duplicates)
	require.Len(t, res.Stats.Passes, 3)
	for _, ps := range res.Stats.Passes {
		assert.Equal(t, 1, ps.Candidates, ps.Pass)
		assert.Equal(t, 1, ps.Matches, ps.Pass)
	}
	assert.Len(t, res.Matches, 3)
	assert.Equal(t, map[string][]string{"1": {"1", "2"}, "3": {"3"}}, res.Groups())
}

func TestRunLinksTransitivelyAcrossPasses(t *testing.T) {
	// 1-2 share surname and postcode, 2-3 only share a phone number
	records := []patient.Record{
		{PatientID: "1", GivenName: "liam", Surname: "hall", Postcode: "2000", PhoneNumber: "0411111111", StreetNumber: patient.Int(5), Age: patient.Int(30)},
		{PatientID: "2", GivenName: "liam", Surname: "hall", Postcode: "2000", PhoneNumber: "0422222222", StreetNumber: patient.Int(5), Age: patient.Int(30)},
		{PatientID: "3", GivenName: "liam", Surname: "hal", Postcode: "3000", PhoneNumber: "0422222222", StreetNumber: patient.Int(5), Age: patient.Int(30)},
	}

	res, err := newPipeline(t, Config{}).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"1": "1", "2": "1", "3": "1"}, dedupIDs(res))
	assert.Equal(t, 1, res.Stats.Clusters)
}

func TestRunCatchesSwappedNames(t *testing.T) {
	records := []patient.Record{
		{PatientID: "10", GivenName: "kim", Surname: "noah", Postcode: "3121", StreetNumber: patient.Int(14), Age: patient.Int(40)},
		{PatientID: "9", GivenName: "noah", Surname: "kim", Postcode: "3121", StreetNumber: patient.Int(14), Age: patient.Int(40)},
	}

	res, err := newPipeline(t, Config{}).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"10": "9", "9": "9"}, dedupIDs(res))
	assert.Equal(t, "postcode", res.Matches[0].Pass)
}

func TestRunDropsAmbiguousIDs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	records := []patient.Record{
		{PatientID: "P1", Surname: "one"},
		{PatientID: "P1", Surname: "two"},
		{PatientID: "P2", Surname: "three"},
	}

	res, err := newPipeline(t, Config{Metrics: m}).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"P2": "P2"}, dedupIDs(res))
	assert.Equal(t, 3, res.Stats.RecordsIn)
	assert.Equal(t, 2, res.Stats.Dropped)
	assert.Equal(t, 1, res.Stats.Records)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsIn))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Clusters))
}

func TestRunIsTotalAndIndependentOfWorkers(t *testing.T) {
	var records []patient.Record
	for i := 0; i < 120; i++ {
		records = append(records, patient.Record{
			PatientID:    fmt.Sprintf("%d", i),
			GivenName:    []string{"ava", "avah", "liam", "mia", "noah"}[i%5],
			Surname:      fmt.Sprintf("family%d", i%9),
			Postcode:     []string{"2000", "3000", "7000"}[i%3],
			PhoneNumber:  fmt.Sprintf("04000000%02d", i%11),
			StreetNumber: patient.Int(1 + i%4),
			Age:          patient.Int(20 + i%6),
		})
	}

	one, err := newPipeline(t, Config{Workers: 1}).Run(context.Background(), append([]patient.Record(nil), records...))
	require.NoError(t, err)
	many, err := newPipeline(t, Config{Workers: 16}).Run(context.Background(), append([]patient.Record(nil), records...))
	require.NoError(t, err)

	assert.Equal(t, dedupIDs(one), dedupIDs(many))
	assert.Equal(t, one.Matches, many.Matches)

	ids := dedupIDs(one)
	require.Len(t, ids, len(records))
	for id, rep := range ids {
		require.NotEmpty(t, rep, id)
		assert.Equal(t, rep, ids[rep], "dedup id %s of %s is not a member of its own cluster", rep, id)
	}
}

func TestRunThresholdsAreTunable(t *testing.T) {
	records := []patient.Record{
		{PatientID: "1", GivenName: "ava", Surname: "lee", Age: patient.Int(30)},
		{PatientID: "2", GivenName: "ava", Surname: "lee", Age: patient.Int(30)},
	}

	strict, err := newPipeline(t, Config{}).Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, strict.Stats.Clusters)

	loose, err := newPipeline(t, Config{Thresholds: match.Thresholds{Match: 2}}).Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, loose.Stats.Clusters)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(t, Config{}).Run(ctx, []patient.Record{{PatientID: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipelineValidation(t *testing.T) {
	_, err := NewPipeline(Config{})
	assert.ErrorIs(t, err, ErrNoReference)

	_, err = NewPipeline(Config{
		Table:  referencetest.Table(t),
		Passes: []match.Pass{{Name: "empty", Key: match.Surname}},
	})
	assert.ErrorIs(t, err, match.ErrInvalidPass)
}
