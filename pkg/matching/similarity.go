// Package matching scores the similarity of person names.
package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/Ramsey-B/oak/pkg/normalizers"
)

const (
	// ParentNameThreshold is the similarity at which two parent names are considered the same person.
	ParentNameThreshold = 0.85
	// DuplicateThreshold is the similarity at which two persons with the same birth day are merged.
	DuplicateThreshold = 0.9
)

// Similarity returns a score in [0,1] for two names after normalization.
// A name contained in the other scores len(shorter)/len(longer); otherwise
// the score is 1 - levenshtein/maxLen, both measured in runes.
func Similarity(a, b string) float64 {
	na := normalizers.NormalizeName(a)
	nb := normalizers.NormalizeName(b)

	if na == nb {
		if na == "" {
			return 0.0
		}
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}

	la := utf8.RuneCountInString(na)
	lb := utf8.RuneCountInString(nb)
	longer := max(la, lb)

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return float64(min(la, lb)) / float64(longer)
	}

	return 1.0 - float64(LevenshteinDistance(na, nb))/float64(longer)
}

// AreSimilar reports whether Similarity(a, b) reaches threshold.
func AreSimilar(a, b string, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

// Equal reports whether two names are identical after normalization.
func Equal(a, b string) bool {
	na := normalizers.NormalizeName(a)
	return na != "" && na == normalizers.NormalizeName(b)
}

// BestMatch returns the index and score of the candidate most similar to name,
// or -1 when no candidate reaches threshold.
func BestMatch(name string, candidates []string, threshold float64) (int, float64) {
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		score := Similarity(name, c)
		if score >= threshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// ShareSurname reports whether the two names have any significant surname token in common.
func ShareSurname(a, b string) bool {
	sa := normalizers.Surnames(a)
	if len(sa) == 0 {
		return false
	}
	sb := normalizers.Surnames(b)
	for _, x := range sa {
		for _, y := range sb {
			if x == y {
				return true
			}
		}
	}
	return false
}

// LevenshteinDistance calculates the rune-level edit distance between two strings
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}
