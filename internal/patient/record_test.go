package patient

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLessID(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"9", "10", true},
		{"10", "9", false},
		{"rec-1", "rec-2", true},
		{"42", "rec-1", true},
		{"rec-1", "42", false},
		{"7", "7", false},
		{"01", "1", true},
		{"1", "01", false},
		{"+1", "01", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"<"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, LessID(tt.a, tt.b))
		})
	}
}

func TestLessIDSortsMixedIDs(t *testing.T) {
	ids := []string{"rec-b", "100", "rec-a", "20", "3"}
	sort.Slice(ids, func(i, j int) bool { return LessID(ids[i], ids[j]) })
	assert.Equal(t, []string{"3", "20", "100", "rec-a", "rec-b"}, ids)
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	_, err := NewSet([]Record{{PatientID: "1"}, {PatientID: "1"}})
	assert.Error(t, err)
}

func TestSetLookup(t *testing.T) {
	set, err := NewSet([]Record{{PatientID: "a", Surname: "smith"}, {PatientID: "b"}})
	require.NoError(t, err)

	r, ok := set.Get("a")
	require.True(t, ok)
	assert.Equal(t, "smith", r.Surname)

	_, ok = set.Get("zzz")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, set.IDs())
	assert.Equal(t, 2, set.Len())
}

func TestCloneIsDeep(t *testing.T) {
	dob := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	set, err := NewSet([]Record{{PatientID: "1", DateOfBirth: &dob, Age: Int(44), StreetNumber: Int(3)}})
	require.NoError(t, err)

	clone := set.Clone()
	*clone.Records[0].Age = 50
	*clone.Records[0].StreetNumber = 9
	clone.Records[0].Surname = "changed"

	assert.Equal(t, 44, *set.Records[0].Age)
	assert.Equal(t, 3, *set.Records[0].StreetNumber)
	assert.Empty(t, set.Records[0].Surname)
	assert.Equal(t, "19800501", clone.Records[0].DateOfBirthString())
}
