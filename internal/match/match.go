// Package match classifies how a free-text query relates to a catalog label.
package match

import (
	"strings"
)

// TokenOverlapThreshold is the minimum share of the smaller token set that must
// appear in the other string for two labels to be considered similar.
const TokenOverlapThreshold = 0.5

// Result is the classification of a query against a single candidate label.
// Exact and Similar are never both true.
type Result struct {
	Exact   bool
	Similar bool
}

// Matched reports whether the label is related to the query at all.
func (r Result) Matched() bool {
	return r.Exact || r.Similar
}

// Normalize trims, lowercases and collapses internal whitespace. Lowercasing
// is rune by rune so the result equals the *_norm columns Postgres computes
// with lower(); full case folding would turn "ß" into "ss" and miss them.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Score compares query and label after normalization. It is symmetric in its
// arguments and has no side effects.
func Score(query, label string) Result {
	q := Normalize(query)
	l := Normalize(label)
	if q == "" || l == "" {
		return Result{}
	}
	if q == l {
		return Result{Exact: true}
	}
	if strings.Contains(l, q) || strings.Contains(q, l) {
		return Result{Similar: true}
	}
	return Result{Similar: TokenOverlap(q, l) >= TokenOverlapThreshold}
}

// TokenOverlap returns |A∩B| / min(|A|,|B|) over the distinct whitespace
// separated tokens of two normalized strings.
func TokenOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	small, large := ta, tb
	if len(small) > len(large) {
		small, large = large, small
	}

	shared := 0
	for t := range small {
		if _, ok := large[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
