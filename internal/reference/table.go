// Package reference holds the read-only table of valid postcode ranges per
// state and the validators built on it.
package reference

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// States is the fixed set of valid state codes
var States = []string{"act", "nsw", "nt", "qld", "sa", "tas", "vic", "wa"}

var stateSet = func() map[string]bool {
	m := make(map[string]bool, len(States))
	for _, s := range States {
		m[s] = true
	}
	return m
}()

// ErrUnknownState is returned when a state code has no entry in the table
var ErrUnknownState = errors.New("unknown state code")

// ErrMalformed is returned when reference data cannot be used
var ErrMalformed = errors.New("malformed reference table")

// IsState reports whether s is one of the fixed valid state codes
func IsState(s string) bool {
	return stateSet[s]
}

// Interval is a closed postcode range registered for a state
type Interval struct {
	State string `db:"state"`
	Min   int    `db:"postcode_min_range"`
	Max   int    `db:"postcode_max_range"`
}

// Contains reports whether p falls inside the interval, bounds included
func (iv Interval) Contains(p int) bool {
	return p >= iv.Min && p <= iv.Max
}

// Table is the immutable state to postcode interval lookup. It is safe for
// concurrent use once built.
type Table struct {
	all      []Interval
	perState map[string][]Interval
}

// NewTable validates intervals and builds the lookup
func NewTable(intervals []Interval) (*Table, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("%w: no intervals", ErrMalformed)
	}

	t := &Table{
		all:      make([]Interval, 0, len(intervals)),
		perState: make(map[string][]Interval),
	}

	for i, iv := range intervals {
		iv.State = strings.ToLower(strings.TrimSpace(iv.State))
		if !IsState(iv.State) {
			return nil, fmt.Errorf("%w: row %d: state %q is not a valid state code", ErrMalformed, i+1, iv.State)
		}
		if iv.Min > iv.Max {
			return nil, fmt.Errorf("%w: row %d: range %d-%d is inverted", ErrMalformed, i+1, iv.Min, iv.Max)
		}
		t.all = append(t.all, iv)
		t.perState[iv.State] = append(t.perState[iv.State], iv)
	}

	return t, nil
}

// Intervals returns a copy of every interval in load order
func (t *Table) Intervals() []Interval {
	out := make([]Interval, len(t.all))
	copy(out, t.all)
	return out
}

// ValidPostcode reports whether p, read as an integer, falls inside any
// interval of any state. Values that are not integers are invalid.
func (t *Table) ValidPostcode(p string) bool {
	n, ok := postcodeNumber(p)
	if !ok {
		return false
	}
	return containsAny(t.all, n)
}

// ValidStatePostcode reports whether p falls inside an interval registered
// for state s. A state with no registered intervals is ErrUnknownState.
func (t *Table) ValidStatePostcode(s, p string) (bool, error) {
	intervals, ok := t.perState[s]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	n, ok := postcodeNumber(p)
	if !ok {
		return false, nil
	}
	return containsAny(intervals, n), nil
}

// StatesFor returns the sorted states whose intervals contain p
func (t *Table) StatesFor(p string) []string {
	n, ok := postcodeNumber(p)
	if !ok {
		return nil
	}

	var states []string
	for state, intervals := range t.perState {
		if containsAny(intervals, n) {
			states = append(states, state)
		}
	}
	sort.Strings(states)
	return states
}

// HasState reports whether the table registers any interval for s
func (t *Table) HasState(s string) bool {
	_, ok := t.perState[s]
	return ok
}

func containsAny(intervals []Interval, n int) bool {
	for _, iv := range intervals {
		if iv.Contains(n) {
			return true
		}
	}
	return false
}

func postcodeNumber(p string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(p))
	if err != nil {
		return 0, false
	}
	return n, true
}
