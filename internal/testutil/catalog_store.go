package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"biblioteca/internal/catalog"
	"biblioteca/internal/match"
)

// MemoryStore is an in-memory catalog.Store. Searches return every entity
// the matcher relates to the query, in insertion order. Setting a Fail*
// field makes the matching calls fail.
type MemoryStore struct {
	mu sync.Mutex

	nextID     int64
	books      []catalog.Book
	authors    []catalog.Author
	publishers []catalog.Publisher
	series     []catalog.Series
	genres     []catalog.Genre

	// Creates counts successful creates per type.
	Creates map[catalog.EntityType]int
	// Calls records the order of create calls, e.g. "create author".
	Calls []string

	FailSearch map[catalog.EntityType]error
	FailCreate map[catalog.EntityType]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Creates:    map[catalog.EntityType]int{},
		FailSearch: map[catalog.EntityType]error{},
		FailCreate: map[catalog.EntityType]error{},
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func related(query, label string) bool {
	return match.Score(query, label).Matched()
}

func filter[T any](items []T, query string, label func(T) string) []T {
	out := []T{}
	for _, it := range items {
		if related(query, label(it)) {
			out = append(out, it)
		}
	}
	return out
}

func (s *MemoryStore) SearchBooks(_ context.Context, q catalog.BookQuery) ([]catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSearch[catalog.TypeBook]; err != nil {
		return nil, err
	}
	books := filter(s.books, q.Title, func(b catalog.Book) string { return b.Title })
	if len(q.AuthorNames) == 0 {
		return books, nil
	}
	out := []catalog.Book{}
	for _, b := range books {
		if s.byAuthorNamed(b, q.AuthorNames) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) byAuthorNamed(b catalog.Book, names []string) bool {
	for _, id := range b.AuthorIDs {
		for _, a := range s.authors {
			if a.ID != id {
				continue
			}
			for _, n := range names {
				if match.Normalize(n) == match.Normalize(a.Name) {
					return true
				}
			}
		}
	}
	return false
}

func (s *MemoryStore) SearchAuthors(_ context.Context, name string) ([]catalog.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSearch[catalog.TypeAuthor]; err != nil {
		return nil, err
	}
	return filter(s.authors, name, func(a catalog.Author) string { return a.Name }), nil
}

func (s *MemoryStore) SearchPublishers(_ context.Context, name string) ([]catalog.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSearch[catalog.TypePublisher]; err != nil {
		return nil, err
	}
	return filter(s.publishers, name, func(p catalog.Publisher) string { return p.Name }), nil
}

func (s *MemoryStore) SearchSeries(_ context.Context, name string) ([]catalog.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSearch[catalog.TypeSeries]; err != nil {
		return nil, err
	}
	return filter(s.series, name, func(x catalog.Series) string { return x.Name }), nil
}

func (s *MemoryStore) SearchGenres(_ context.Context, name string) ([]catalog.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSearch[catalog.TypeGenre]; err != nil {
		return nil, err
	}
	return filter(s.genres, name, func(g catalog.Genre) string { return g.Name }), nil
}

func find[T any](items []T, id int64, idOf func(T) int64) (T, error) {
	for _, it := range items {
		if idOf(it) == id {
			return it, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("id %d: %w", id, catalog.ErrNotFound)
}

func (s *MemoryStore) GetBook(_ context.Context, id int64) (catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return find(s.books, id, func(b catalog.Book) int64 { return b.ID })
}

func (s *MemoryStore) GetAuthor(_ context.Context, id int64) (catalog.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return find(s.authors, id, func(a catalog.Author) int64 { return a.ID })
}

func (s *MemoryStore) GetPublisher(_ context.Context, id int64) (catalog.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return find(s.publishers, id, func(p catalog.Publisher) int64 { return p.ID })
}

func (s *MemoryStore) GetSeries(_ context.Context, id int64) (catalog.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return find(s.series, id, func(x catalog.Series) int64 { return x.ID })
}

func (s *MemoryStore) created(typ catalog.EntityType) error {
	s.Calls = append(s.Calls, "create "+string(typ))
	if err := s.FailCreate[typ]; err != nil {
		return err
	}
	s.Creates[typ]++
	return nil
}

func (s *MemoryStore) CreateBook(_ context.Context, b catalog.Book) (catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.created(catalog.TypeBook); err != nil {
		return catalog.Book{}, err
	}
	b.ID = s.id()
	b.Title = strings.TrimSpace(b.Title)
	s.books = append(s.books, b)
	return b, nil
}

func (s *MemoryStore) CreateAuthor(_ context.Context, a catalog.Author) (catalog.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.created(catalog.TypeAuthor); err != nil {
		return catalog.Author{}, err
	}
	a.ID = s.id()
	a.Name = strings.TrimSpace(a.Name)
	s.authors = append(s.authors, a)
	return a, nil
}

func (s *MemoryStore) CreatePublisher(_ context.Context, p catalog.Publisher) (catalog.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.created(catalog.TypePublisher); err != nil {
		return catalog.Publisher{}, err
	}
	p.ID = s.id()
	p.Name = strings.TrimSpace(p.Name)
	s.publishers = append(s.publishers, p)
	return p, nil
}

func (s *MemoryStore) CreateSeries(_ context.Context, x catalog.Series) (catalog.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.created(catalog.TypeSeries); err != nil {
		return catalog.Series{}, err
	}
	x.ID = s.id()
	x.Name = strings.TrimSpace(x.Name)
	s.series = append(s.series, x)
	return x, nil
}

// AddGenre seeds a genre; the catalog has no create path for genres.
func (s *MemoryStore) AddGenre(name string) catalog.Genre {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := catalog.Genre{ID: s.id(), Name: name}
	s.genres = append(s.genres, g)
	return g
}

// Len reports how many entities of typ are stored.
func (s *MemoryStore) Len(typ catalog.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch typ {
	case catalog.TypeBook:
		return len(s.books)
	case catalog.TypeAuthor:
		return len(s.authors)
	case catalog.TypePublisher:
		return len(s.publishers)
	case catalog.TypeSeries:
		return len(s.series)
	case catalog.TypeGenre:
		return len(s.genres)
	}
	return 0
}
