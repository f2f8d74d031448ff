package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a catalog entity does not exist.
var ErrNotFound = errors.New("catalog entity not found")

// EntityType names one kind of catalog entity.
type EntityType string

const (
	TypeBook      EntityType = "book"
	TypeAuthor    EntityType = "author"
	TypePublisher EntityType = "publisher"
	TypeSeries    EntityType = "series"
	TypeGenre     EntityType = "genre"
	TypeAll       EntityType = "all"
)

// ConcreteTypes lists every searchable type in the order "all" searches them.
var ConcreteTypes = []EntityType{TypeBook, TypeAuthor, TypePublisher, TypeSeries, TypeGenre}

// ParseEntityType accepts singular and plural forms ("authors", "series").
// An empty string means TypeAll.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return TypeAll, nil
	case "book", "books":
		return TypeBook, nil
	case "author", "authors":
		return TypeAuthor, nil
	case "publisher", "publishers":
		return TypePublisher, nil
	case "series":
		return TypeSeries, nil
	case "genre", "genres":
		return TypeGenre, nil
	default:
		return "", fmt.Errorf("invalid entity type: %s", s)
	}
}

type Book struct {
	ID                      int64     `json:"id,omitempty"`
	Title                   string    `json:"title" validate:"required"`
	AuthorIDs               []int64   `json:"authorIds"`
	PublisherID             *int64    `json:"publisherId,omitempty"`
	SeriesID                *int64    `json:"seriesId,omitempty"`
	SeriesOrder             *int      `json:"seriesOrder,omitempty"`
	Genres                  []string  `json:"genres"`
	Pages                   *int      `json:"pages,omitempty" validate:"omitempty,gte=0"`
	ISBN                    string    `json:"isbn,omitempty" validate:"omitempty,isbn"`
	OriginalPublicationDate string    `json:"originalPublicationDate,omitempty"`
	Description             string    `json:"description,omitempty"`
	Language                string    `json:"language,omitempty"`
	CoverURL                string    `json:"coverUrl,omitempty"`
	CreatedAt               time.Time `json:"createdAt,omitempty"`
	UpdatedAt               time.Time `json:"updatedAt,omitempty"`
}

type Author struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Biography   string    `json:"biography,omitempty"`
	BirthDate   string    `json:"birthDate,omitempty"`
	DeathDate   string    `json:"deathDate,omitempty"`
	Nationality string    `json:"nationality,omitempty"`
	Website     string    `json:"website,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type Publisher struct {
	ID           int64     `json:"id,omitempty"`
	Name         string    `json:"name" validate:"required"`
	Description  string    `json:"description,omitempty"`
	Website      string    `json:"website,omitempty"`
	FoundedYear  *int      `json:"foundedYear,omitempty"`
	Headquarters string    `json:"headquarters,omitempty"`
	LogoURL      string    `json:"logoUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type Series struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	TotalBooks  *int      `json:"totalBooks,omitempty"`
	IsCompleted bool      `json:"isCompleted"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type Genre struct {
	ID            int64     `json:"id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ParentGenreID *int64    `json:"parentGenreId,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// SearchResult is the type-independent projection of a catalog entity.
// Books set Title, every other type sets Name.
type SearchResult struct {
	Type        EntityType `json:"type"`
	ID          int64      `json:"id"`
	Title       string     `json:"title,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	AuthorIDs   []int64    `json:"authorIds,omitempty"`
}

// SharesAuthor reports whether r is a book by one of ids. Non-book results
// and an empty ids always share.
func (r SearchResult) SharesAuthor(ids []int64) bool {
	if r.Type != TypeBook || len(ids) == 0 {
		return true
	}
	for _, want := range ids {
		for _, have := range r.AuthorIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Label is the string the matcher compares against.
func (r SearchResult) Label() string {
	if r.Type == TypeBook {
		return r.Title
	}
	return r.Name
}

func (b Book) Result() SearchResult {
	return SearchResult{Type: TypeBook, ID: b.ID, Title: b.Title, Description: b.Description, AuthorIDs: b.AuthorIDs}
}

func (a Author) Result() SearchResult {
	return SearchResult{Type: TypeAuthor, ID: a.ID, Name: a.Name, Description: a.Biography}
}

func (p Publisher) Result() SearchResult {
	return SearchResult{Type: TypePublisher, ID: p.ID, Name: p.Name, Description: p.Description}
}

func (s Series) Result() SearchResult {
	return SearchResult{Type: TypeSeries, ID: s.ID, Name: s.Name, Description: s.Description}
}

func (g Genre) Result() SearchResult {
	return SearchResult{Type: TypeGenre, ID: g.ID, Name: g.Name, Description: g.Description}
}

// BookQuery narrows a book search. When AuthorNames is set only books by at
// least one of those authors are returned. AuthorIDs filters nothing; books
// by one of those authors are returned ahead of the others.
type BookQuery struct {
	Title       string
	AuthorNames []string
	AuthorIDs   []int64
}
