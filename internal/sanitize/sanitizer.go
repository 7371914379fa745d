// Package sanitize cleans and cross-validates intake records before matching.
//
// Stages run strictly in order; later stages rely on the corrections of
// earlier ones (postcodes are repaired before they are validated, states are
// corrected before they are checked against postcodes, and so on).
package sanitize

import (
	"fmt"

	"github.com/intake-dedup/internal/debug"
	"github.com/intake-dedup/internal/metrics"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference"
)

// Stage is one in-place cleaning step over the whole set. It returns the
// number of field values it changed.
type Stage struct {
	Name  string
	Apply func(set *patient.Set) (int, error)
}

// Sanitizer runs the ordered cleaning pipeline
type Sanitizer struct {
	table   *reference.Table
	metrics *metrics.Metrics
}

// New creates a sanitizer validating against table. m may be nil.
func New(table *reference.Table, m *metrics.Metrics) *Sanitizer {
	return &Sanitizer{
		table:   table,
		metrics: m,
	}
}

// Stages returns the stages that follow id de-duplication, in run order
func (s *Sanitizer) Stages() []Stage {
	return []Stage{
		{Name: "parse_date_of_birth", Apply: infallible(ParseDateOfBirth)},
		{Name: "null_street_numbers", Apply: infallible(NullStreetNumbers)},
		{Name: "repair_suburb_postcode", Apply: infallible(RepairSuburbPostcode)},
		{Name: "null_invalid_postcodes", Apply: func(set *patient.Set) (int, error) {
			return NullInvalidPostcodes(s.table, set), nil
		}},
		{Name: "correct_states", Apply: infallible(CorrectStates)},
		{Name: "null_incoherent_states", Apply: func(set *patient.Set) (int, error) {
			return NullIncoherentStates(s.table, set)
		}},
		{Name: "infer_states", Apply: func(set *patient.Set) (int, error) {
			return InferStates(s.table, set), nil
		}},
	}
}

// Run drops ambiguous ids and applies every stage in order. The only errors
// are fatal reference problems; data anomalies are resolved by nulling.
func (s *Sanitizer) Run(localDebug bool, records []patient.Record) (*patient.Set, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	set, dropped := DropAmbiguousIDs(records)
	s.metrics.ObserveDropped(dropped)
	debug.DebugOutput(localDebug, "drop_ambiguous_ids: %d of %d records removed", dropped, len(records))

	for _, stage := range s.Stages() {
		changed, err := stage.Apply(set)
		if err != nil {
			return nil, fmt.Errorf("sanitize %s: %w", stage.Name, err)
		}
		s.metrics.ObserveStage(stage.Name, changed)
		debug.DebugOutput(localDebug, "%s: %d fields changed", stage.Name, changed)
	}

	return set, nil
}

func infallible(fn func(*patient.Set) int) func(*patient.Set) (int, error) {
	return func(set *patient.Set) (int, error) {
		return fn(set), nil
	}
}
