package patient

import "fmt"

// Set is an ordered collection of records indexed by patient id. Record
// order is preserved through every pipeline stage.
type Set struct {
	Records []Record
	index   map[string]int
}

// NewSet builds a set from records whose ids are already unique
func NewSet(records []Record) (*Set, error) {
	s := &Set{
		Records: records,
		index:   make(map[string]int, len(records)),
	}
	for i, r := range records {
		if _, dup := s.index[r.PatientID]; dup {
			return nil, fmt.Errorf("duplicate patient_id %q", r.PatientID)
		}
		s.index[r.PatientID] = i
	}
	return s, nil
}

// Len is the number of records in the set
func (s *Set) Len() int {
	return len(s.Records)
}

// Get returns the record with the given id
func (s *Set) Get(id string) (*Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Records[i], true
}

// IDs returns every patient id in set order
func (s *Set) IDs() []string {
	ids := make([]string, len(s.Records))
	for i, r := range s.Records {
		ids[i] = r.PatientID
	}
	return ids
}

// Clone returns a deep copy so stages can be compared against their input
func (s *Set) Clone() *Set {
	records := make([]Record, len(s.Records))
	for i, r := range s.Records {
		records[i] = r.clone()
	}
	index := make(map[string]int, len(s.index))
	for k, v := range s.index {
		index[k] = v
	}
	return &Set{Records: records, index: index}
}

func (r Record) clone() Record {
	out := r
	if r.DateOfBirth != nil {
		d := *r.DateOfBirth
		out.DateOfBirth = &d
	}
	if r.StreetNumber != nil {
		out.StreetNumber = Int(*r.StreetNumber)
	}
	if r.Age != nil {
		out.Age = Int(*r.Age)
	}
	return out
}
