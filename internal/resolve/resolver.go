// Package resolve turns entity descriptions into catalog entities, reusing an
// existing record when the duplicate check finds an exact match and creating
// one otherwise.
//
// Two concurrent ensures of the same new name can both miss and both create.
// Nothing here locks across calls; duplicate rows are left to the catalog
// merge process.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"biblioteca/internal/catalog"
	"biblioteca/internal/dedupe"
	"biblioteca/internal/library"
	"biblioteca/internal/metrics"
	"biblioteca/internal/platform/logger"
)

var (
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrCatalogUnavailable means the lookup side failed before anything was
	// written.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrCreateRejected means the duplicate check ran but the store did not
	// create the new entity.
	ErrCreateRejected = errors.New("catalog rejected the new entity")
)

// Detector is the duplicate check ensure consults before creating.
type Detector interface {
	Detect(ctx context.Context, name string, typ catalog.EntityType) (dedupe.Verdict, error)
	DetectBook(ctx context.Context, title string, authorIDs []int64) (dedupe.Verdict, error)
}

// LibraryAdder stores the user side of a resolved book.
type LibraryAdder interface {
	Add(ctx context.Context, userID string, catalogBookID int64, d library.Details) (library.Record, error)
}

type Resolver struct {
	store       catalog.Store
	detector    Detector
	library     LibraryAdder
	concurrency int
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// NewResolver builds a Resolver. concurrency bounds the sub-resolutions a
// single ResolveAndAttach runs at once; zero or less means unbounded.
func NewResolver(store catalog.Store, detector Detector, lib LibraryAdder, concurrency int, log *logger.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		store:       store,
		detector:    detector,
		library:     lib,
		concurrency: concurrency,
		log:         log.With("component", "resolver"),
		metrics:     m,
	}
}

type entity interface {
	Result() catalog.SearchResult
}

func ensure[T entity](
	ctx context.Context,
	r *Resolver,
	typ catalog.EntityType,
	name string,
	detect func(context.Context) (dedupe.Verdict, error),
	get func(context.Context, int64) (T, error),
	create func(context.Context) (T, error),
) (T, bool, error) {
	var zero T
	if strings.TrimSpace(name) == "" {
		return zero, false, fmt.Errorf("%w: %s name is required", ErrInvalidEntity, typ)
	}

	v, err := detect(ctx)
	if err != nil {
		r.metrics.Ensure(string(typ), "failed")
		return zero, false, fmt.Errorf("detect %s: %w: %w", typ, ErrCatalogUnavailable, err)
	}

	if len(v.ExactMatches) > 0 {
		id := v.ExactMatches[0].ID
		out, err := get(ctx, id)
		if err != nil {
			r.metrics.Ensure(string(typ), "failed")
			return zero, false, fmt.Errorf("get %s %d: %w: %w", typ, id, ErrCatalogUnavailable, err)
		}
		r.metrics.Ensure(string(typ), "matched")
		return out, false, nil
	}

	if v.Inconclusive {
		r.log.Warn("duplicate check inconclusive, creating anyway", "type", typ, "name", name)
	}

	out, err := create(ctx)
	if err != nil {
		r.metrics.Ensure(string(typ), "failed")
		return zero, false, fmt.Errorf("create %s: %w: %w", typ, ErrCreateRejected, err)
	}
	if out.Result().ID <= 0 {
		r.metrics.Ensure(string(typ), "failed")
		return zero, false, fmt.Errorf("create %s: %w: store returned no id", typ, ErrCreateRejected)
	}
	r.log.Info("catalog entity created", "type", typ, "id", out.Result().ID, "name", name)
	r.metrics.Ensure(string(typ), "created")
	return out, true, nil
}

// EnsureAuthor returns the catalog author named a.Name, creating it from a
// when no exact match exists. created reports which happened. Fields of a are
// ignored when an existing author is returned.
func (r *Resolver) EnsureAuthor(ctx context.Context, a catalog.Author) (catalog.Author, bool, error) {
	a.ID = 0
	return ensure(ctx, r, catalog.TypeAuthor, a.Name,
		func(ctx context.Context) (dedupe.Verdict, error) {
			return r.detector.Detect(ctx, a.Name, catalog.TypeAuthor)
		},
		r.store.GetAuthor,
		func(ctx context.Context) (catalog.Author, error) {
			return r.store.CreateAuthor(ctx, a)
		},
	)
}

func (r *Resolver) EnsurePublisher(ctx context.Context, p catalog.Publisher) (catalog.Publisher, bool, error) {
	p.ID = 0
	return ensure(ctx, r, catalog.TypePublisher, p.Name,
		func(ctx context.Context) (dedupe.Verdict, error) {
			return r.detector.Detect(ctx, p.Name, catalog.TypePublisher)
		},
		r.store.GetPublisher,
		func(ctx context.Context) (catalog.Publisher, error) {
			return r.store.CreatePublisher(ctx, p)
		},
	)
}

func (r *Resolver) EnsureSeries(ctx context.Context, s catalog.Series) (catalog.Series, bool, error) {
	s.ID = 0
	return ensure(ctx, r, catalog.TypeSeries, s.Name,
		func(ctx context.Context) (dedupe.Verdict, error) {
			return r.detector.Detect(ctx, s.Name, catalog.TypeSeries)
		},
		r.store.GetSeries,
		func(ctx context.Context) (catalog.Series, error) {
			return r.store.CreateSeries(ctx, s)
		},
	)
}

// EnsureBook matches on title and author ids: a same-titled book by other
// authors is not reused.
func (r *Resolver) EnsureBook(ctx context.Context, b catalog.Book) (catalog.Book, bool, error) {
	b.ID = 0
	return ensure(ctx, r, catalog.TypeBook, b.Title,
		func(ctx context.Context) (dedupe.Verdict, error) {
			return r.detector.DetectBook(ctx, b.Title, b.AuthorIDs)
		},
		r.store.GetBook,
		func(ctx context.Context) (catalog.Book, error) {
			return r.store.CreateBook(ctx, b)
		},
	)
}
