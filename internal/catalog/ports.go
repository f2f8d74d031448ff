package catalog

import "context"

//go:generate mockgen -source=ports.go -destination=mock_store.go -package=catalog

// Store is the shared catalog. Search methods return candidates in insertion
// order and may include loose matches; ranking is the caller's job.
type Store interface {
	SearchBooks(ctx context.Context, q BookQuery) ([]Book, error)
	SearchAuthors(ctx context.Context, name string) ([]Author, error)
	SearchPublishers(ctx context.Context, name string) ([]Publisher, error)
	SearchSeries(ctx context.Context, name string) ([]Series, error)
	SearchGenres(ctx context.Context, name string) ([]Genre, error)

	GetBook(ctx context.Context, id int64) (Book, error)
	GetAuthor(ctx context.Context, id int64) (Author, error)
	GetPublisher(ctx context.Context, id int64) (Publisher, error)
	GetSeries(ctx context.Context, id int64) (Series, error)

	CreateBook(ctx context.Context, b Book) (Book, error)
	CreateAuthor(ctx context.Context, a Author) (Author, error)
	CreatePublisher(ctx context.Context, p Publisher) (Publisher, error)
	CreateSeries(ctx context.Context, s Series) (Series, error)
}
