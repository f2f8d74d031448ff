// Package library holds per-user records that point at catalog books.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("library record not found")
	ErrAlreadyInLibrary  = errors.New("book already in library")
	ErrMissingCatalogRef = errors.New("library record has no catalog book id")
	ErrInvalidChange     = errors.New("invalid library record change")
)

const (
	StatusRead       = "READ"
	StatusReading    = "READING"
	StatusWantToRead = "WANT_TO_READ"
	StatusOnHold     = "ON_HOLD"
)

func ValidateStatus(status string) error {
	switch status {
	case StatusRead, StatusReading, StatusWantToRead, StatusOnHold:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", status)
	}
}

// Record is one book in one user's library.
type Record struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"userId"`
	CatalogBookID   int64     `json:"catalogBookId"`
	Status          string    `json:"status"`
	PersonalRating  *int      `json:"personalRating,omitempty"`
	PersonalNotes   string    `json:"personalNotes,omitempty"`
	Price           *float64  `json:"price,omitempty"`
	Source          string    `json:"source,omitempty"`
	IsOwned         bool      `json:"isOwned"`
	IsFavorite      bool      `json:"isFavorite"`
	ReadingProgress int       `json:"readingProgress"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Details are the user-specific fields supplied when adding a book.
type Details struct {
	Status          string   `json:"status" validate:"required,oneof=READ READING WANT_TO_READ ON_HOLD"`
	PersonalRating  *int     `json:"personalRating" validate:"omitempty,gte=1,lte=5"`
	PersonalNotes   string   `json:"personalNotes" validate:"max=4000"`
	Price           *float64 `json:"price" validate:"omitempty,gte=0"`
	Source          string   `json:"source" validate:"max=200"`
	IsOwned         bool     `json:"isOwned"`
	IsFavorite      bool     `json:"isFavorite"`
	ReadingProgress int      `json:"readingProgress" validate:"gte=0,lte=100"`
}

// Changes is a partial update of a record. Nil fields are left as stored.
type Changes struct {
	Status          *string  `json:"status"`
	PersonalRating  *int     `json:"personalRating" validate:"omitempty,gte=1,lte=5"`
	PersonalNotes   *string  `json:"personalNotes" validate:"omitempty,max=4000"`
	Price           *float64 `json:"price" validate:"omitempty,gte=0"`
	Source          *string  `json:"source" validate:"omitempty,max=200"`
	IsOwned         *bool    `json:"isOwned"`
	IsFavorite      *bool    `json:"isFavorite"`
	ReadingProgress *int     `json:"readingProgress" validate:"omitempty,gte=0,lte=100"`
}

func (c Changes) empty() bool {
	return c.Status == nil && c.PersonalRating == nil && c.PersonalNotes == nil && c.Price == nil &&
		c.Source == nil && c.IsOwned == nil && c.IsFavorite == nil && c.ReadingProgress == nil
}

type Repository interface {
	Add(ctx context.Context, rec Record) (Record, error)
	List(ctx context.Context, userID, status string, limit, offset int) ([]Record, int, error)
	Update(ctx context.Context, userID string, id int64, c Changes) (Record, error)
	Delete(ctx context.Context, userID string, id int64) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Add stores a record for a book that is already in the catalog.
func (s *Service) Add(ctx context.Context, userID string, catalogBookID int64, d Details) (Record, error) {
	if catalogBookID <= 0 {
		return Record{}, ErrMissingCatalogRef
	}
	if strings.TrimSpace(userID) == "" {
		return Record{}, errors.New("user id is required")
	}
	d.Status = strings.ToUpper(strings.TrimSpace(d.Status))
	if d.Status == "" {
		d.Status = StatusWantToRead
	}
	if err := ValidateStatus(d.Status); err != nil {
		return Record{}, err
	}
	if d.PersonalRating != nil && (*d.PersonalRating < 1 || *d.PersonalRating > 5) {
		return Record{}, fmt.Errorf("personal rating must be between 1 and 5, got %d", *d.PersonalRating)
	}

	return s.repo.Add(ctx, Record{
		UserID:          userID,
		CatalogBookID:   catalogBookID,
		Status:          d.Status,
		PersonalRating:  d.PersonalRating,
		PersonalNotes:   d.PersonalNotes,
		Price:           d.Price,
		Source:          d.Source,
		IsOwned:         d.IsOwned,
		IsFavorite:      d.IsFavorite,
		ReadingProgress: d.ReadingProgress,
	})
}

// List returns a page of the user's records. An empty status lists all.
func (s *Service) List(ctx context.Context, userID, status string, limit, offset int) ([]Record, int, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" {
		if err := ValidateStatus(status); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, userID, status, limit, offset)
}

// Update applies c to one of the user's records. The catalog book a record
// points at never changes.
func (s *Service) Update(ctx context.Context, userID string, id int64, c Changes) (Record, error) {
	if strings.TrimSpace(userID) == "" {
		return Record{}, errors.New("user id is required")
	}
	if c.empty() {
		return Record{}, fmt.Errorf("%w: nothing to update", ErrInvalidChange)
	}
	if c.Status != nil {
		status := strings.ToUpper(strings.TrimSpace(*c.Status))
		if err := ValidateStatus(status); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		c.Status = &status
	}
	if c.PersonalRating != nil && (*c.PersonalRating < 1 || *c.PersonalRating > 5) {
		return Record{}, fmt.Errorf("%w: personal rating must be between 1 and 5, got %d", ErrInvalidChange, *c.PersonalRating)
	}
	if c.ReadingProgress != nil && (*c.ReadingProgress < 0 || *c.ReadingProgress > 100) {
		return Record{}, fmt.Errorf("%w: reading progress must be between 0 and 100, got %d", ErrInvalidChange, *c.ReadingProgress)
	}
	if c.Price != nil && *c.Price < 0 {
		return Record{}, fmt.Errorf("%w: price must not be negative", ErrInvalidChange)
	}
	return s.repo.Update(ctx, userID, id, c)
}

func (s *Service) Remove(ctx context.Context, userID string, id int64) error {
	return s.repo.Delete(ctx, userID, id)
}
