// Package search runs typed catalog lookups and ranks the candidates into a
// single result envelope.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"biblioteca/internal/catalog"
	"biblioteca/internal/match"
	"biblioteca/internal/metrics"
	"biblioteca/internal/platform/logger"

	"golang.org/x/sync/errgroup"
)

var ErrEmptyQuery = errors.New("search query is empty")

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

type Query struct {
	Text  string
	Type  catalog.EntityType
	Limit int
	// AuthorNames narrows book searches; ignored for other types.
	AuthorNames []string
	// AuthorIDs moves books by those authors ahead of other books with the
	// same score, so they survive the limit.
	AuthorIDs []int64
}

// Results is what a search returns. Inconclusive means at least one store
// lookup failed, so an empty Items is not evidence that nothing matches.
type Results struct {
	Items        []catalog.SearchResult `json:"items"`
	Inconclusive bool                   `json:"inconclusive"`
}

type Gateway struct {
	store   catalog.Store
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewGateway(store catalog.Store, log *logger.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		store:   store,
		log:     log.With("component", "search_gateway"),
		metrics: m,
	}
}

// Search performs one store lookup per concrete type (every type for
// catalog.TypeAll) and never retries. Store failures are reported through
// Results.Inconclusive, not as an error.
func (g *Gateway) Search(ctx context.Context, q Query) (Results, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Results{}, ErrEmptyQuery
	}

	typ := q.Type
	if typ == "" {
		typ = catalog.TypeAll
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	types := []catalog.EntityType{typ}
	if typ == catalog.TypeAll {
		types = catalog.ConcreteTypes
	} else if !isConcrete(typ) {
		return Results{}, fmt.Errorf("unsupported entity type %q", typ)
	}

	perType := make([][]catalog.SearchResult, len(types))
	failed := make([]bool, len(types))

	var eg errgroup.Group
	for i, t := range types {
		eg.Go(func() error {
			found, err := g.lookup(ctx, t, text, q)
			if err != nil {
				g.log.Warn("catalog lookup failed", "type", t, "query", text, "error", err)
				failed[i] = true
			}
			perType[i] = found
			g.metrics.Search(string(t), err != nil)
			return nil
		})
	}
	_ = eg.Wait()

	var candidates []catalog.SearchResult
	inconclusive := false
	for i := range types {
		candidates = append(candidates, perType[i]...)
		inconclusive = inconclusive || failed[i]
	}

	if len(q.AuthorIDs) > 0 {
		candidates = byAuthorFirst(candidates, q.AuthorIDs)
	}

	return Results{
		Items:        Rank(text, candidates, limit),
		Inconclusive: inconclusive,
	}, nil
}

func isConcrete(t catalog.EntityType) bool {
	for _, c := range catalog.ConcreteTypes {
		if c == t {
			return true
		}
	}
	return false
}

func (g *Gateway) lookup(ctx context.Context, typ catalog.EntityType, text string, q Query) ([]catalog.SearchResult, error) {
	switch typ {
	case catalog.TypeBook:
		books, err := g.store.SearchBooks(ctx, catalog.BookQuery{Title: text, AuthorNames: q.AuthorNames, AuthorIDs: q.AuthorIDs})
		return project(books, err)
	case catalog.TypeAuthor:
		authors, err := g.store.SearchAuthors(ctx, text)
		return project(authors, err)
	case catalog.TypePublisher:
		publishers, err := g.store.SearchPublishers(ctx, text)
		return project(publishers, err)
	case catalog.TypeSeries:
		series, err := g.store.SearchSeries(ctx, text)
		return project(series, err)
	case catalog.TypeGenre:
		genres, err := g.store.SearchGenres(ctx, text)
		return project(genres, err)
	default:
		return nil, fmt.Errorf("unsupported entity type %q", typ)
	}
}

type resulter interface {
	Result() catalog.SearchResult
}

func project[T resulter](items []T, err error) ([]catalog.SearchResult, error) {
	if err != nil {
		return nil, err
	}
	out := make([]catalog.SearchResult, 0, len(items))
	for _, it := range items {
		out = append(out, it.Result())
	}
	return out, nil
}

// byAuthorFirst is a stable partition: books by one of ids, then the rest.
func byAuthorFirst(candidates []catalog.SearchResult, ids []int64) []catalog.SearchResult {
	first := make([]catalog.SearchResult, 0, len(candidates))
	var rest []catalog.SearchResult
	for _, c := range candidates {
		if c.Type == catalog.TypeBook && c.SharesAuthor(ids) {
			first = append(first, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(first, rest...)
}

// Rank puts exact matches before similar ones, keeps the incoming order among
// equals, drops candidates that do not match at all and truncates to limit.
func Rank(query string, candidates []catalog.SearchResult, limit int) []catalog.SearchResult {
	var exact, similar []catalog.SearchResult
	for _, c := range candidates {
		r := match.Score(query, c.Label())
		switch {
		case r.Exact:
			exact = append(exact, c)
		case r.Similar:
			similar = append(similar, c)
		}
	}

	out := append(exact, similar...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []catalog.SearchResult{}
	}
	return out
}
