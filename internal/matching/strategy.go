package matching

import (
	"strings"

	"golang.org/x/text/cases"
)

// Strategy decides whether a free-text medicine name refers to a stock entry.
// Prescriptions and catalog rows both carry unnormalised names, so the
// default strategy is deliberately loose; stricter ones can be swapped in
// without touching callers.
type Strategy interface {
	Matches(query, name string) bool
}

var fold = cases.Fold()

func normalize(s string) string {
	return fold.String(strings.TrimSpace(s))
}

// ExactStrategy matches only case-insensitively equal names.
type ExactStrategy struct{}

func (ExactStrategy) Matches(query, name string) bool {
	return normalize(query) == normalize(name)
}

// SubstringStrategy matches when either name contains the other after case
// folding. "Paracetamol" must hit "Paracetamol 500mg" and vice versa.
type SubstringStrategy struct{}

func (SubstringStrategy) Matches(query, name string) bool {
	q, n := normalize(query), normalize(name)
	if q == "" || n == "" {
		return false
	}
	return strings.Contains(n, q) || strings.Contains(q, n)
}

// EditDistanceStrategy tolerates small typos up to MaxDistance edits.
type EditDistanceStrategy struct {
	MaxDistance int
}

func (s EditDistanceStrategy) Matches(query, name string) bool {
	q, n := normalize(query), normalize(name)
	if q == "" || n == "" {
		return false
	}
	return levenshtein(q, n) <= s.MaxDistance
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
