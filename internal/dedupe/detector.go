// Package dedupe classifies how likely a candidate entity already exists in
// the catalog.
package dedupe

import (
	"context"

	"biblioteca/internal/catalog"
	"biblioteca/internal/match"
	"biblioteca/internal/metrics"
	"biblioteca/internal/search"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Suggestion string

const (
	SuggestUseExisting    Suggestion = "use_existing"
	SuggestReviewRequired Suggestion = "review_required"
	SuggestCreateNew      Suggestion = "create_new"
)

// Verdict is computed per call and never stored. ExactMatches and
// SimilarMatches are disjoint.
type Verdict struct {
	HasMatches     bool                   `json:"hasMatches"`
	ExactMatches   []catalog.SearchResult `json:"exactMatches"`
	SimilarMatches []catalog.SearchResult `json:"similarMatches"`
	Confidence     Confidence             `json:"confidence"`
	Suggestion     Suggestion             `json:"suggestion"`
	// Inconclusive is set when the catalog lookup failed; a low confidence
	// verdict then means "unknown", not "no duplicates".
	Inconclusive bool `json:"inconclusive"`
}

// Searcher is the part of search.Gateway the detector uses.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Results, error)
}

type Detector struct {
	searcher Searcher
	limit    int
	metrics  *metrics.Metrics
}

func NewDetector(searcher Searcher, limit int, m *metrics.Metrics) *Detector {
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	return &Detector{searcher: searcher, limit: limit, metrics: m}
}

// Detect returns the verdict for name among catalog entities of typ.
func (d *Detector) Detect(ctx context.Context, name string, typ catalog.EntityType) (Verdict, error) {
	return d.detect(ctx, name, typ, nil)
}

// DetectBook is Detect for books, constrained by author. A candidate with an
// equal title is only exact when it shares an author id with authorIDs; with
// no author ids the title alone decides.
func (d *Detector) DetectBook(ctx context.Context, title string, authorIDs []int64) (Verdict, error) {
	return d.detect(ctx, title, catalog.TypeBook, authorIDs)
}

func (d *Detector) detect(ctx context.Context, name string, typ catalog.EntityType, authorIDs []int64) (Verdict, error) {
	res, err := d.searcher.Search(ctx, search.Query{Text: name, Type: typ, Limit: d.limit, AuthorIDs: authorIDs})
	if err != nil {
		return Verdict{}, err
	}

	v := Classify(name, res.Items, authorIDs)
	v.Inconclusive = res.Inconclusive
	d.metrics.Verdict(string(typ), string(v.Confidence))
	return v, nil
}

// Classify partitions results relative to name and applies the decision table.
func Classify(name string, results []catalog.SearchResult, authorIDs []int64) Verdict {
	v := Verdict{
		ExactMatches:   []catalog.SearchResult{},
		SimilarMatches: []catalog.SearchResult{},
	}
	for _, r := range results {
		score := match.Score(name, r.Label())
		switch {
		case score.Exact && r.SharesAuthor(authorIDs):
			v.ExactMatches = append(v.ExactMatches, r)
		case score.Matched():
			v.SimilarMatches = append(v.SimilarMatches, r)
		}
	}

	v.HasMatches = len(v.ExactMatches) > 0 || len(v.SimilarMatches) > 0
	v.Confidence = confidenceOf(len(v.ExactMatches), len(v.SimilarMatches))
	v.Suggestion = SuggestionFor(v.Confidence)
	return v
}

func confidenceOf(exact, similar int) Confidence {
	switch {
	case exact > 0:
		return ConfidenceHigh
	case similar > 0:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func SuggestionFor(c Confidence) Suggestion {
	switch c {
	case ConfidenceHigh:
		return SuggestUseExisting
	case ConfidenceMedium:
		return SuggestReviewRequired
	default:
		return SuggestCreateNew
	}
}
