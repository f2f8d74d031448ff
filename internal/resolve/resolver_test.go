package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"

	"biblioteca/internal/catalog"
	"biblioteca/internal/dedupe"
	"biblioteca/internal/library"
	"biblioteca/internal/platform/logger"
	"biblioteca/internal/search"
	"biblioteca/internal/testutil"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLibrary struct {
	mu      sync.Mutex
	records []library.Record
	err     error
}

func (f *fakeLibrary) Add(_ context.Context, userID string, catalogBookID int64, d library.Details) (library.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return library.Record{}, f.err
	}
	rec := library.Record{
		ID:             int64(len(f.records) + 1),
		UserID:         userID,
		CatalogBookID:  catalogBookID,
		Status:         d.Status,
		PersonalRating: d.PersonalRating,
		PersonalNotes:  d.PersonalNotes,
		Price:          d.Price,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func newResolver(store catalog.Store, lib LibraryAdder) *Resolver {
	gw := search.NewGateway(store, logger.Nop(), nil)
	return NewResolver(store, dedupe.NewDetector(gw, 10, nil), lib, 4, logger.Nop(), nil)
}

func TestResolver_EnsureAuthor_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	r := newResolver(store, &fakeLibrary{})

	first, created, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Brand New Author"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	second, created, err := r.EnsureAuthor(ctx, catalog.Author{Name: "  brand new   AUTHOR "})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Brand New Author", second.Name)

	assert.Equal(t, 1, store.Len(catalog.TypeAuthor))
}

func TestResolver_EnsureAuthor_NonASCIIName(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	r := newResolver(store, &fakeLibrary{})

	first, created, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Strauß"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := r.EnsureAuthor(ctx, catalog.Author{Name: "STRAUẞ"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Len(catalog.TypeAuthor))
}

func TestResolver_EnsureAuthor_CatalogIdentityWins(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	r := newResolver(store, &fakeLibrary{})

	orig, _, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Brandon Sanderson", Nationality: "American"})
	require.NoError(t, err)

	again, created, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Brandon Sanderson", Nationality: "Unknown", Biography: "new bio"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, orig.ID, again.ID)
	assert.Equal(t, "American", again.Nationality)
	assert.Empty(t, again.Biography)
}

func TestResolver_EnsureSimilarCreatesNew(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	r := newResolver(store, &fakeLibrary{})

	_, _, err := r.EnsureAuthor(ctx, catalog.Author{Name: "J.R.R. Tolkien"})
	require.NoError(t, err)

	_, created, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Tolkien"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, store.Len(catalog.TypeAuthor))
}

func TestResolver_EnsureValidation(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := catalog.NewMockStore(ctrl)
	r := newResolver(store, &fakeLibrary{})

	_, _, err := r.EnsureAuthor(ctx, catalog.Author{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, _, err = r.EnsurePublisher(ctx, catalog.Publisher{})
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, _, err = r.EnsureSeries(ctx, catalog.Series{})
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, _, err = r.EnsureBook(ctx, catalog.Book{})
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestResolver_EnsureFetchesFirstExactByID(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := catalog.NewMockStore(ctrl)
	r := newResolver(store, &fakeLibrary{})

	store.EXPECT().SearchPublishers(gomock.Any(), "Tor").Return([]catalog.Publisher{
		{ID: 3, Name: "Tor Books"},
		{ID: 5, Name: "TOR"},
		{ID: 6, Name: "tor"},
	}, nil)
	store.EXPECT().GetPublisher(gomock.Any(), int64(5)).Return(catalog.Publisher{ID: 5, Name: "TOR", Website: "tor.com"}, nil)

	p, created, err := r.EnsurePublisher(ctx, catalog.Publisher{Name: "Tor"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, "tor.com", p.Website)
}

func TestResolver_EnsureInconclusiveStillCreates(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := catalog.NewMockStore(ctrl)
	r := newResolver(store, &fakeLibrary{})

	gomock.InOrder(
		store.EXPECT().SearchSeries(gomock.Any(), "Mistborn").Return(nil, errors.New("timeout")),
		store.EXPECT().CreateSeries(gomock.Any(), catalog.Series{Name: "Mistborn"}).Return(catalog.Series{ID: 12, Name: "Mistborn"}, nil),
	)

	s, created, err := r.EnsureSeries(ctx, catalog.Series{Name: "Mistborn"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12), s.ID)
}

func TestResolver_EnsureCreateFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := catalog.NewMockStore(ctrl)
	r := newResolver(store, &fakeLibrary{})

	storeErr := errors.New("constraint violation")
	store.EXPECT().SearchAuthors(gomock.Any(), gomock.Any()).Return(nil, nil)
	store.EXPECT().CreateAuthor(gomock.Any(), gomock.Any()).Return(catalog.Author{}, storeErr)

	_, _, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Anon"})
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, err, ErrCreateRejected)
	assert.NotErrorIs(t, err, ErrCatalogUnavailable)
}

func TestResolver_EnsureGetFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := catalog.NewMockStore(ctrl)
	r := newResolver(store, &fakeLibrary{})

	store.EXPECT().SearchSeries(gomock.Any(), "Mistborn").Return([]catalog.Series{{ID: 2, Name: "Mistborn"}}, nil)
	store.EXPECT().GetSeries(gomock.Any(), int64(2)).Return(catalog.Series{}, errors.New("timeout"))

	_, created, err := r.EnsureSeries(ctx, catalog.Series{Name: "Mistborn"})
	assert.False(t, created)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.NotErrorIs(t, err, ErrCreateRejected)
}

func TestResolver_EnsureBook_ConsidersAuthors(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	r := newResolver(store, &fakeLibrary{})

	austen, _, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Jane Austen"})
	require.NoError(t, err)
	other, _, err := r.EnsureAuthor(ctx, catalog.Author{Name: "Someone Else"})
	require.NoError(t, err)

	emma, created, err := r.EnsureBook(ctx, catalog.Book{Title: "Emma", AuthorIDs: []int64{austen.ID}})
	require.NoError(t, err)
	require.True(t, created)

	same, created, err := r.EnsureBook(ctx, catalog.Book{Title: "EMMA", AuthorIDs: []int64{austen.ID}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, emma.ID, same.ID)

	namesake, created, err := r.EnsureBook(ctx, catalog.Book{Title: "Emma", AuthorIDs: []int64{other.ID}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, emma.ID, namesake.ID)
}

func TestResolver_EnsureBook_ManyNamesakes(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	r := newResolver(store, &fakeLibrary{})

	for i := int64(101); i <= 110; i++ {
		_, err := store.CreateBook(ctx, catalog.Book{Title: "Poems", AuthorIDs: []int64{i}})
		require.NoError(t, err)
	}

	first, created, err := r.EnsureBook(ctx, catalog.Book{Title: "Poems", AuthorIDs: []int64{999}})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := r.EnsureBook(ctx, catalog.Book{Title: "Poems", AuthorIDs: []int64{999}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 11, store.Len(catalog.TypeBook))
}

func TestResolveAndAttach_NewAuthorExistingPublisher(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	lib := &fakeLibrary{}
	r := newResolver(store, lib)

	publisher, err := store.CreatePublisher(ctx, catalog.Publisher{Name: "Gollancz"})
	require.NoError(t, err)
	store.Calls = nil

	rating := 5
	rec, err := r.ResolveAndAttach(ctx, testutil.TestUserID, BookRequest{
		Book:      catalog.Book{Title: "The Way of Kings"},
		Authors:   []catalog.Author{{Name: "Brandon Sanderson"}},
		Publisher: &catalog.Publisher{ID: publisher.ID},
		Library:   library.Details{Status: library.StatusReading, PersonalRating: &rating},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"create author", "create book"}, store.Calls)
	assert.Equal(t, 1, store.Creates[catalog.TypeAuthor])
	assert.Equal(t, 0, store.Creates[catalog.TypePublisher])
	assert.Equal(t, 1, store.Creates[catalog.TypeBook])

	require.Len(t, lib.records, 1)
	assert.Equal(t, rec, lib.records[0])
	assert.Equal(t, testutil.TestUserID, rec.UserID)

	book, err := store.GetBook(ctx, rec.CatalogBookID)
	require.NoError(t, err)
	assert.Equal(t, "The Way of Kings", book.Title)
	require.NotNil(t, book.PublisherID)
	assert.Equal(t, publisher.ID, *book.PublisherID)
	assert.Nil(t, book.SeriesID)
	require.Len(t, book.AuthorIDs, 1)
	author, err := store.GetAuthor(ctx, book.AuthorIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Brandon Sanderson", author.Name)
}

func TestResolveAndAttach_ReusesEverythingOnResubmit(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	lib := &fakeLibrary{}
	r := newResolver(store, lib)

	req := BookRequest{
		Book:      catalog.Book{Title: "Mistborn: The Final Empire"},
		Authors:   []catalog.Author{{Name: "Brandon Sanderson"}, {Name: "brandon sanderson"}},
		Publisher: &catalog.Publisher{Name: "Tor Books"},
		Series:    &catalog.Series{Name: "Mistborn"},
		Library:   library.Details{Status: library.StatusWantToRead},
	}

	first, err := r.ResolveAndAttach(ctx, "u-1", req)
	require.NoError(t, err)
	second, err := r.ResolveAndAttach(ctx, "u-2", req)
	require.NoError(t, err)

	assert.Equal(t, first.CatalogBookID, second.CatalogBookID)
	assert.Equal(t, 1, store.Len(catalog.TypeAuthor))
	assert.Equal(t, 1, store.Len(catalog.TypePublisher))
	assert.Equal(t, 1, store.Len(catalog.TypeSeries))
	assert.Equal(t, 1, store.Len(catalog.TypeBook))

	book, err := store.GetBook(ctx, first.CatalogBookID)
	require.NoError(t, err)
	assert.Len(t, book.AuthorIDs, 1)
}

func TestResolveAndAttach_BookFailureWritesNoLibraryRecord(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	store.FailCreate[catalog.TypeBook] = errors.New("check constraint")
	lib := &fakeLibrary{}
	r := newResolver(store, lib)

	_, err := r.ResolveAndAttach(ctx, "u-1", BookRequest{
		Book:    catalog.Book{Title: "Elantris"},
		Authors: []catalog.Author{{Name: "Brandon Sanderson"}},
		Library: library.Details{Status: library.StatusRead},
	})
	require.Error(t, err)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StageBook, re.Stage)
	assert.True(t, re.PartialWrite())
	require.Len(t, re.Created, 1)
	assert.Equal(t, catalog.TypeAuthor, re.Created[0].Type)
	assert.Empty(t, lib.records)

	// the author stays in the catalog
	assert.Equal(t, 1, store.Len(catalog.TypeAuthor))
}

func TestResolveAndAttach_PublisherFailureStopsBeforeBook(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	store.FailCreate[catalog.TypePublisher] = errors.New("publisher service down")
	lib := &fakeLibrary{}
	r := newResolver(store, lib)

	_, err := r.ResolveAndAttach(ctx, "u-1", BookRequest{
		Book:      catalog.Book{Title: "Warbreaker"},
		Authors:   []catalog.Author{{ID: 99}},
		Publisher: &catalog.Publisher{Name: "Tor Books"},
		Library:   library.Details{Status: library.StatusRead},
	})

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StagePublisher, re.Stage)
	assert.False(t, re.PartialWrite())
	assert.Equal(t, 0, store.Len(catalog.TypeBook))
	assert.Empty(t, lib.records)
}

func TestResolveAndAttach_LibraryFailure(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	lib := &fakeLibrary{err: library.ErrAlreadyInLibrary}
	r := newResolver(store, lib)

	_, err := r.ResolveAndAttach(ctx, "u-1", BookRequest{
		Book:    catalog.Book{Title: "Elantris"},
		Authors: []catalog.Author{{Name: "Brandon Sanderson"}},
	})

	assert.ErrorIs(t, err, library.ErrAlreadyInLibrary)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StageLibrary, re.Stage)
	assert.Len(t, re.Created, 2)
}

func TestResolveAndAttach_Validation(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := catalog.NewMockStore(ctrl)
	lib := &fakeLibrary{}
	r := newResolver(store, lib)

	cases := map[string]BookRequest{
		"no title":         {Authors: []catalog.Author{{ID: 1}}},
		"no authors":       {Book: catalog.Book{Title: "Dune"}},
		"blank author":     {Book: catalog.Book{Title: "Dune"}, Authors: []catalog.Author{{Name: " "}}},
		"blank publisher":  {Book: catalog.Book{Title: "Dune"}, Authors: []catalog.Author{{ID: 1}}, Publisher: &catalog.Publisher{}},
		"blank series ref": {Book: catalog.Book{Title: "Dune"}, Authors: []catalog.Author{{ID: 1}}, Series: &catalog.Series{}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.ResolveAndAttach(ctx, "u-1", req)
			assert.ErrorIs(t, err, ErrInvalidEntity)
		})
	}
	assert.Empty(t, lib.records)
}
