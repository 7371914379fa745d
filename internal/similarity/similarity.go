// Package similarity implements the string metrics used for record linkage.
// All functions operate on runes, not bytes.
package similarity

// Winkler prefix boost parameters
const (
	prefixScale    = 0.1
	maxPrefix      = 4
	boostThreshold = 0.7
)

// Jaro computes the Jaro similarity between two strings in [0, 1]
func Jaro(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	matchWindow := max(len1, len2)/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	s1Matches := make([]bool, len1)
	s2Matches := make([]bool, len2)

	matches := 0
	for i := 0; i < len1; i++ {
		start := max(0, i-matchWindow)
		end := min(i+matchWindow+1, len2)

		for j := start; j < end; j++ {
			if s2Matches[j] || r1[i] != r2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Half-transpositions: matched characters that appear in a different order
	halfTranspositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if r1[i] != r2[k] {
			halfTranspositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(halfTranspositions) / 2.0

	return (m/float64(len1) + m/float64(len2) + (m-t)/m) / 3.0
}

// JaroWinkler boosts the Jaro similarity of strings sharing a common prefix
// of up to four characters. The boost applies only above a Jaro score of 0.7.
func JaroWinkler(s1, s2 string) float64 {
	j := Jaro(s1, s2)
	if j <= boostThreshold {
		return j
	}

	r1, r2 := []rune(s1), []rune(s2)
	prefix := 0
	for prefix < min(len(r1), len(r2), maxPrefix) && r1[prefix] == r2[prefix] {
		prefix++
	}

	return j + float64(prefix)*prefixScale*(1.0-j)
}

// OSADistance is the optimal string alignment distance: the Levenshtein
// distance extended with unit-cost swaps of adjacent characters, where no
// substring is edited more than once.
func OSADistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}

	r1, r2 := []rune(s1), []rune(s2)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	matrix := make([][]int, len1+1)
	for i := range matrix {
		matrix[i] = make([]int, len2+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)

			if i > 1 && j > 1 && r1[i-1] == r2[j-2] && r1[i-2] == r2[j-1] {
				matrix[i][j] = min(matrix[i][j], matrix[i-2][j-2]+1)
			}
		}
	}

	return matrix[len1][len2]
}
