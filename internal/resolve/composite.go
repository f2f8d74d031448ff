package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"biblioteca/internal/catalog"
	"biblioteca/internal/library"
	"biblioteca/internal/match"

	"golang.org/x/sync/errgroup"
)

// BookRequest is a full book submission. Authors, Publisher and Series with
// a non-zero ID are references to existing catalog entities and are used as
// is; the others are descriptions to ensure.
type BookRequest struct {
	Book      catalog.Book       `json:"book"`
	Authors   []catalog.Author   `json:"authors" validate:"required,min=1"`
	Publisher *catalog.Publisher `json:"publisher,omitempty" validate:"-"`
	Series    *catalog.Series    `json:"series,omitempty" validate:"-"`
	Library   library.Details    `json:"userLibraryData"`
}

type Stage string

const (
	StageAuthor    Stage = "author"
	StagePublisher Stage = "publisher"
	StageSeries    Stage = "series"
	StageBook      Stage = "book"
	StageLibrary   Stage = "library"
)

// Error reports a failed ResolveAndAttach. Created lists the catalog entities
// the call created before failing; they are not rolled back. No library
// record exists for a failed call.
type Error struct {
	Stage   Stage
	Err     error
	Created []catalog.SearchResult
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PartialWrite reports whether catalog entities were created even though the
// book did not reach the user's library.
func (e *Error) PartialWrite() bool {
	return len(e.Created) > 0
}

type createdLog struct {
	mu    sync.Mutex
	items []catalog.SearchResult
}

func (c *createdLog) add(created bool, r catalog.SearchResult) {
	if !created {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, r)
}

func (c *createdLog) list() []catalog.SearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]catalog.SearchResult(nil), c.items...)
}

func validateRequest(req BookRequest) error {
	if strings.TrimSpace(req.Book.Title) == "" {
		return fmt.Errorf("%w: book title is required", ErrInvalidEntity)
	}
	if len(req.Authors) == 0 {
		return fmt.Errorf("%w: at least one author is required", ErrInvalidEntity)
	}
	for i, a := range req.Authors {
		if a.ID <= 0 && strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("%w: author %d needs an id or a name", ErrInvalidEntity, i)
		}
	}
	if p := req.Publisher; p != nil && p.ID <= 0 && strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: publisher needs an id or a name", ErrInvalidEntity)
	}
	if s := req.Series; s != nil && s.ID <= 0 && strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: series needs an id or a name", ErrInvalidEntity)
	}
	return nil
}

// ResolveAndAttach resolves the authors, publisher and series of req
// concurrently, then the book, then adds the book to userID's library. The
// library record is only written once the book has a catalog id. Failures
// after validation are returned as *Error.
func (r *Resolver) ResolveAndAttach(ctx context.Context, userID string, req BookRequest) (library.Record, error) {
	if err := validateRequest(req); err != nil {
		return library.Record{}, err
	}

	created := &createdLog{}
	authorIDs := make([]int64, len(req.Authors))
	var publisherID, seriesID *int64

	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	// the same new author listed twice is ensured once
	pending := map[string][]int{}
	var order []string
	for i, a := range req.Authors {
		if a.ID > 0 {
			authorIDs[i] = a.ID
			continue
		}
		key := match.Normalize(a.Name)
		if _, ok := pending[key]; !ok {
			order = append(order, key)
		}
		pending[key] = append(pending[key], i)
	}
	for _, key := range order {
		idx := pending[key]
		a := req.Authors[idx[0]]
		g.Go(func() error {
			out, isNew, err := r.EnsureAuthor(gctx, a)
			if err != nil {
				return &Error{Stage: StageAuthor, Err: err}
			}
			created.add(isNew, out.Result())
			for _, i := range idx {
				authorIDs[i] = out.ID
			}
			return nil
		})
	}

	if p := req.Publisher; p != nil {
		if p.ID > 0 {
			publisherID = &p.ID
		} else {
			g.Go(func() error {
				out, isNew, err := r.EnsurePublisher(gctx, *p)
				if err != nil {
					return &Error{Stage: StagePublisher, Err: err}
				}
				created.add(isNew, out.Result())
				publisherID = &out.ID
				return nil
			})
		}
	}

	if s := req.Series; s != nil {
		if s.ID > 0 {
			seriesID = &s.ID
		} else {
			g.Go(func() error {
				out, isNew, err := r.EnsureSeries(gctx, *s)
				if err != nil {
					return &Error{Stage: StageSeries, Err: err}
				}
				created.add(isNew, out.Result())
				seriesID = &out.ID
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return library.Record{}, r.fail(err, created)
	}

	book := req.Book
	book.AuthorIDs = uniqueIDs(authorIDs)
	book.PublisherID = publisherID
	book.SeriesID = seriesID

	resolved, isNew, err := r.EnsureBook(ctx, book)
	if err != nil {
		return library.Record{}, r.fail(&Error{Stage: StageBook, Err: err}, created)
	}
	created.add(isNew, resolved.Result())

	rec, err := r.library.Add(ctx, userID, resolved.ID, req.Library)
	if err != nil {
		return library.Record{}, r.fail(&Error{Stage: StageLibrary, Err: err}, created)
	}

	r.metrics.Resolution("attached")
	r.log.Info("book attached to library",
		"user_id", userID, "catalog_book_id", resolved.ID, "book_created", isNew, "created_entities", len(created.list()))
	return rec, nil
}

func (r *Resolver) fail(err error, created *createdLog) error {
	var re *Error
	if !errors.As(err, &re) {
		re = &Error{Stage: StageBook, Err: err}
	}
	re.Created = created.list()

	result := "failed"
	if re.PartialWrite() {
		result = "partial"
	}
	r.metrics.Resolution(result)
	r.log.Warn("book resolution failed", "stage", re.Stage, "created_entities", len(re.Created), "error", re.Err)
	return re
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
