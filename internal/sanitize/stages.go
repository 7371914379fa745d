package sanitize

import (
	"fmt"
	"strings"
	"time"

	"github.com/intake-dedup/internal/normalize"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference"
	"github.com/intake-dedup/internal/similarity"
)

// DropAmbiguousIDs removes every record whose patient_id occurs more than
// once, every occurrence of it.
// Returns the indexed set and the number of records removed.
func DropAmbiguousIDs(records []patient.Record) (*patient.Set, int) {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[r.PatientID]++
	}

	kept := make([]patient.Record, 0, len(records))
	for _, r := range records {
		if counts[r.PatientID] == 1 {
			kept = append(kept, r)
		}
	}

	// ids in kept are unique by construction
	set, _ := patient.NewSet(kept)
	return set, len(records) - len(kept)
}

// ParseDateOfBirth parses RawDateOfBirth as YYYYMMDD into DateOfBirth.
// Unparsable values become nil. Records without a raw value keep whatever
// DateOfBirth they already carry.
func ParseDateOfBirth(set *patient.Set) int {
	nulled := 0
	for i := range set.Records {
		r := &set.Records[i]
		raw := strings.TrimSpace(r.RawDateOfBirth)
		if raw == "" {
			continue
		}

		dob, err := time.Parse(patient.DateLayout, raw)
		if err != nil {
			r.DateOfBirth = nil
			nulled++
			continue
		}
		r.DateOfBirth = &dob
	}
	return nulled
}

// NullStreetNumbers treats a street number of 0 as not provided
func NullStreetNumbers(set *patient.Set) int {
	nulled := 0
	for i := range set.Records {
		r := &set.Records[i]
		if r.StreetNumber != nil && *r.StreetNumber == 0 {
			r.StreetNumber = nil
			nulled++
		}
	}
	return nulled
}

// RepairSuburbPostcode swaps suburb and postcode on records whose suburb
// contains a digit, then strips letters from the corrected postcode
func RepairSuburbPostcode(set *patient.Set) int {
	swapped := 0
	for i := range set.Records {
		r := &set.Records[i]
		if !normalize.HasDigit(r.Suburb) {
			continue
		}
		r.Suburb, r.Postcode = r.Postcode, strings.TrimSpace(normalize.StripLetters(r.Suburb))
		swapped++
	}
	return swapped
}

// NullInvalidPostcodes empties every postcode that falls outside all
// reference intervals. Validation runs once per distinct value.
func NullInvalidPostcodes(table *reference.Table, set *patient.Set) int {
	valid := make(map[string]bool)
	for i := range set.Records {
		p := set.Records[i].Postcode
		if p == "" {
			continue
		}
		if _, seen := valid[p]; !seen {
			valid[p] = table.ValidPostcode(p)
		}
	}

	nulled := 0
	for i := range set.Records {
		r := &set.Records[i]
		if r.Postcode != "" && !valid[r.Postcode] {
			r.Postcode = ""
			nulled++
		}
	}
	return nulled
}

// CorrectStates maps state codes outside the valid set onto a valid state
// when exactly one state is a single edit away (adjacent swaps count as one
// edit). Codes with no or several such states are emptied. Codes are
// lower-cased and trimmed first.
func CorrectStates(set *patient.Set) int {
	codes := make(map[string]string)
	for i := range set.Records {
		code := normalize.Code(set.Records[i].State)
		if code == "" || reference.IsState(code) {
			continue
		}
		if _, seen := codes[code]; !seen {
			codes[code] = nearestState(code)
		}
	}

	changed := 0
	for i := range set.Records {
		r := &set.Records[i]
		code := normalize.Code(r.State)

		fixed := code
		if corrected, ok := codes[code]; ok {
			fixed = corrected
		}
		if fixed != r.State {
			r.State = fixed
			changed++
		}
	}
	return changed
}

// nearestState returns the only valid state at distance 1 from code, or ""
func nearestState(code string) string {
	match := ""
	for _, state := range reference.States {
		if similarity.OSADistance(code, state) != 1 {
			continue
		}
		if match != "" {
			return ""
		}
		match = state
	}
	return match
}

// NullIncoherentStates empties the state of records whose postcode is not
// registered for that state. The postcode is kept: it has the finer-grained
// validation. A state missing from the reference table is a fatal error.
func NullIncoherentStates(table *reference.Table, set *patient.Set) (int, error) {
	nulled := 0
	for i := range set.Records {
		r := &set.Records[i]
		if r.State == "" || r.Postcode == "" {
			continue
		}

		ok, err := table.ValidStatePostcode(r.State, r.Postcode)
		if err != nil {
			return nulled, fmt.Errorf("patient %s: %w", r.PatientID, err)
		}
		if !ok {
			r.State = ""
			nulled++
		}
	}
	return nulled, nil
}

// InferStates fills an empty state from the postcode when exactly one state
// registers that postcode. Postcodes shared by several states stay unguessed.
func InferStates(table *reference.Table, set *patient.Set) int {
	inferred := make(map[string]string)
	filled := 0
	for i := range set.Records {
		r := &set.Records[i]
		if r.State != "" || r.Postcode == "" {
			continue
		}

		state, seen := inferred[r.Postcode]
		if !seen {
			if states := table.StatesFor(r.Postcode); len(states) == 1 {
				state = states[0]
			}
			inferred[r.Postcode] = state
		}
		if state != "" {
			r.State = state
			filled++
		}
	}
	return filled
}
