package match

// Kind selects how a comparison turns two values into a feature
type Kind int

const (
	// Exact scores 1 when both values are present and equal
	Exact Kind = iota
	// Fuzzy scores 1 when the Jaro-Winkler similarity reaches the threshold
	Fuzzy
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Fuzzy:
		return "fuzzy"
	}
	return "unknown"
}

// Comparison is one entry of a pass's feature vector. Left is read from the
// first record of a pair and Right from the second; they differ for cross
// comparisons such as given name against surname.
type Comparison struct {
	Name      string
	Left      Field
	Right     Field
	Kind      Kind
	Threshold float64 // fuzzy only; 0 uses Thresholds.Similarity
}

// Pass is one blocking key plus the comparisons scored within its blocks
type Pass struct {
	Name        string
	Key         Field
	Comparisons []Comparison
}

// Thresholds defines the similarity cutoff and the match decision boundary
type Thresholds struct {
	Similarity float64 // fuzzy feature is 1 at or above this
	Match      float64 // pair matches when the feature sum reaches this
}

// DefaultThresholds returns the cutoffs the pipeline ships with
func DefaultThresholds() Thresholds {
	return Thresholds{
		Similarity: 0.85,
		Match:      4,
	}
}

// Scored is a candidate pair with its feature vector
type Scored struct {
	Pass     string
	Left     string // patient ids
	Right    string
	Features []int // aligned with Pass.Comparisons
	Score    float64
	Match    bool
}

// PassResult summarises one blocking pass
type PassResult struct {
	Pass       string
	Blocks     int
	Candidates int
	Matches    []Scored
}

// Explain maps each comparison name of p to its feature value in s
func (p Pass) Explain(s Scored) map[string]int {
	out := make(map[string]int, len(p.Comparisons))
	for i, c := range p.Comparisons {
		if i < len(s.Features) {
			out[c.Name] = s.Features[i]
		}
	}
	return out
}
