package catalog

import (
	"context"
	"fmt"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get loads one entity by type and id. Genres are only reachable through
// search.
func (s *Service) Get(ctx context.Context, typ EntityType, id int64) (any, error) {
	switch typ {
	case TypeBook:
		return s.store.GetBook(ctx, id)
	case TypeAuthor:
		return s.store.GetAuthor(ctx, id)
	case TypePublisher:
		return s.store.GetPublisher(ctx, id)
	case TypeSeries:
		return s.store.GetSeries(ctx, id)
	default:
		return nil, fmt.Errorf("get %s: unsupported type", typ)
	}
}
