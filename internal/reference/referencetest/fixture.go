// Package referencetest provides a small reference table for tests.
package referencetest

import (
	"testing"

	"github.com/intake-dedup/internal/reference"
)

// Intervals mirrors testdata/state_postcode.csv. Postcode 3644 is registered
// for both nsw and vic so tests can exercise ambiguous inference.
var Intervals = []reference.Interval{
	{State: "act", Min: 2600, Max: 2618},
	{State: "act", Min: 2900, Max: 2920},
	{State: "nsw", Min: 2000, Max: 2599},
	{State: "nsw", Min: 2619, Max: 2899},
	{State: "nsw", Min: 2921, Max: 2999},
	{State: "nsw", Min: 3644, Max: 3644},
	{State: "nt", Min: 800, Max: 899},
	{State: "qld", Min: 4000, Max: 4999},
	{State: "sa", Min: 5000, Max: 5799},
	{State: "tas", Min: 7000, Max: 7799},
	{State: "vic", Min: 3000, Max: 3999},
	{State: "wa", Min: 6000, Max: 6797},
}

// Table builds the fixture table, failing the test on error
func Table(t testing.TB) *reference.Table {
	t.Helper()

	table, err := reference.NewTable(Intervals)
	if err != nil {
		t.Fatalf("failed to build reference fixture: %v", err)
	}
	return table
}
