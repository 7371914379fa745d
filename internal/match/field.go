package match

import (
	"strconv"

	"github.com/intake-dedup/internal/normalize"
	"github.com/intake-dedup/internal/patient"
)

// Field identifies a record attribute that can be blocked on or compared
type Field int

const (
	GivenName Field = iota
	Surname
	DateOfBirth
	StreetNumber
	Address1
	Address2
	Suburb
	Postcode
	State
	Age
	PhoneNumber

	fieldCount
)

var fieldNames = [fieldCount]string{
	GivenName:    "given_name",
	Surname:      "surname",
	DateOfBirth:  "date_of_birth",
	StreetNumber: "street_number",
	Address1:     "address_1",
	Address2:     "address_2",
	Suburb:       "suburb",
	Postcode:     "postcode",
	State:        "state",
	Age:          "age",
	PhoneNumber:  "phone_number",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// ParseField looks a field up by its column name
func ParseField(name string) (Field, bool) {
	for f, n := range fieldNames {
		if n == name {
			return Field(f), true
		}
	}
	return 0, false
}

// normalized returns the comparison form of field f of r; "" means null
func normalized(r *patient.Record, f Field) string {
	switch f {
	case GivenName:
		return normalize.Text(r.GivenName)
	case Surname:
		return normalize.Text(r.Surname)
	case DateOfBirth:
		return r.DateOfBirthString()
	case StreetNumber:
		return optionalInt(r.StreetNumber)
	case Address1:
		return normalize.Address(r.Address1)
	case Address2:
		return normalize.Address(r.Address2)
	case Suburb:
		return normalize.Text(r.Suburb)
	case Postcode:
		return normalize.Code(r.Postcode)
	case State:
		return normalize.Code(r.State)
	case Age:
		return optionalInt(r.Age)
	case PhoneNumber:
		return normalize.Phone(r.PhoneNumber)
	}
	return ""
}

func optionalInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// Index holds the normalised value of every field of every record in a set,
// computed once and shared read-only by all passes and workers
type Index struct {
	ids    []string
	values [][fieldCount]string
}

// NewIndex normalises every record of set
func NewIndex(set *patient.Set) *Index {
	idx := &Index{
		ids:    make([]string, set.Len()),
		values: make([][fieldCount]string, set.Len()),
	}
	for i := range set.Records {
		r := &set.Records[i]
		idx.ids[i] = r.PatientID
		for f := Field(0); f < fieldCount; f++ {
			idx.values[i][f] = normalized(r, f)
		}
	}
	return idx
}

// Len is the number of indexed records
func (idx *Index) Len() int {
	return len(idx.ids)
}

// ID returns the patient id of record i
func (idx *Index) ID(i int) string {
	return idx.ids[i]
}

// Value returns the normalised field f of record i
func (idx *Index) Value(i int, f Field) string {
	return idx.values[i][f]
}
