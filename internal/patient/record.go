// Package patient defines the intake record and the ordered record set the
// dedup pipeline works on. String fields use the empty string for "not
// provided"; numeric and date fields use nil.
package patient

import (
	"strconv"
	"time"
)

// DateLayout is the fixed date_of_birth format of intake sources (YYYYMMDD)
const DateLayout = "20060102"

// Record represents one patient intake entry
type Record struct {
	PatientID      string     `json:"patient_id"`
	GivenName      string     `json:"given_name"`
	Surname        string     `json:"surname"`
	RawDateOfBirth string     `json:"-"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	StreetNumber   *int       `json:"street_number,omitempty"`
	Address1       string     `json:"address_1"`
	Address2       string     `json:"address_2"`
	Suburb         string     `json:"suburb"`
	Postcode       string     `json:"postcode"`
	State          string     `json:"state"`
	Age            *int       `json:"age,omitempty"`
	PhoneNumber    string     `json:"phone_number"`
	DedupID        string     `json:"dedup_id,omitempty"`
}

// DateOfBirthString formats the parsed date of birth, or "" when unknown
func (r Record) DateOfBirthString() string {
	if r.DateOfBirth == nil {
		return ""
	}
	return r.DateOfBirth.Format(DateLayout)
}

// Int returns a pointer to n, for building records in code
func Int(n int) *int {
	return &n
}

// LessID orders patient ids: numerically when both are integers, otherwise
// lexically. Integers sort before non-integers. Spellings of the same integer
// ("1", "01", "+1") fall back to lexical order so the order stays strict.
func LessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)

	switch {
	case errA == nil && errB == nil:
		if na == nb {
			return a < b
		}
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
