// Package matching resolves free-text prescription lines against a
// pharmacy's aggregated stock and reports which lines can be fulfilled.
package matching

// Line is one prescribed medicine with the quantity the prescription needs.
type Line struct {
	Name        string `json:"name"`
	RequiredQty int64  `json:"requiredQty"`
}

// StockEntry is one aggregated catalog row as seen by the matcher.
type StockEntry struct {
	Name      string
	Brand     string
	Available int64
}

// LineResult carries the outcome for a single prescription line. A missing
// line keeps its actual available quantity (possibly zero) so callers can
// offer partial orders.
type LineResult struct {
	Name         string `json:"name"`
	RequiredQty  int64  `json:"requiredQty"`
	AvailableQty int64  `json:"availableQty"`
}

// Result is the fulfillment report for one prescription against one pharmacy.
type Result struct {
	Matched         []LineResult `json:"matchedMedicines"`
	Missing         []LineResult `json:"missingMedicines"`
	HasAllMedicines bool         `json:"hasAllMedicines"`
}

// MatchedCount returns the number of lines the pharmacy can fully satisfy.
func (r Result) MatchedCount() int {
	return len(r.Matched)
}

// Matcher pairs prescription lines with stock entries using a Strategy.
type Matcher struct {
	strategy Strategy
}

// NewMatcher builds a Matcher; a nil strategy falls back to substring
// containment.
func NewMatcher(strategy Strategy) *Matcher {
	if strategy == nil {
		strategy = SubstringStrategy{}
	}
	return &Matcher{strategy: strategy}
}

// Best returns the index of the stock entry best matching query. When the
// strategy admits several candidates, the one sharing the longest prefix
// with the query wins; remaining ties go to the higher available quantity.
func (m *Matcher) Best(query string, stock []StockEntry) (int, bool) {
	best := -1
	for i := range stock {
		if !m.strategy.Matches(query, stock[i].Name) {
			continue
		}
		if best < 0 || m.better(query, stock[i], stock[best]) {
			best = i
		}
	}
	return best, best >= 0
}

func (m *Matcher) better(query string, candidate, current StockEntry) bool {
	q := normalize(query)
	cp := sharedPrefixLen(q, normalize(candidate.Name))
	bp := sharedPrefixLen(q, normalize(current.Name))
	if cp != bp {
		return cp > bp
	}
	return candidate.Available > current.Available
}

// Match computes the fulfillment report. It never fails: unmatched lines are
// reported as missing with availableQty zero, and HasAllMedicines is true
// only when every line is fully covered. The function is pure; identical
// inputs always produce identical results.
func (m *Matcher) Match(lines []Line, stock []StockEntry) Result {
	result := Result{HasAllMedicines: true}
	for _, line := range lines {
		idx, ok := m.Best(line.Name, stock)
		if !ok {
			result.Missing = append(result.Missing, LineResult{Name: line.Name, RequiredQty: line.RequiredQty})
			result.HasAllMedicines = false
			continue
		}
		entry := LineResult{Name: line.Name, RequiredQty: line.RequiredQty, AvailableQty: stock[idx].Available}
		if entry.AvailableQty >= line.RequiredQty {
			result.Matched = append(result.Matched, entry)
		} else {
			result.Missing = append(result.Missing, entry)
			result.HasAllMedicines = false
		}
	}
	return result
}

func sharedPrefixLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := min(len(ra), len(rb))
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			return i
		}
	}
	return n
}
