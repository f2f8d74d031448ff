package catalog

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"biblioteca/internal/platform/logger"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu       sync.Mutex
	data     map[string]string
	failGet  bool
	failIncr bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncr {
		return 0, errors.New("READONLY You can't write against a read only replica")
	}
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func TestCachedStore_SearchAuthors(t *testing.T) {
	ctx := context.Background()
	tolkien := Author{ID: 1, Name: "J.R.R. Tolkien"}

	t.Run("second search is served from cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := NewMockStore(ctrl)
		c := NewCachedStore(inner, newMemKV(), time.Minute, logger.Nop(), nil)

		inner.EXPECT().SearchAuthors(gomock.Any(), "Tolkien").Return([]Author{tolkien}, nil).Times(1)

		first, err := c.SearchAuthors(ctx, "Tolkien")
		require.NoError(t, err)
		second, err := c.SearchAuthors(ctx, "  tolkien ")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, "J.R.R. Tolkien", second[0].Name)
	})

	t.Run("create invalidates cached results for the type", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := NewMockStore(ctrl)
		c := NewCachedStore(inner, newMemKV(), time.Minute, logger.Nop(), nil)

		brandon := Author{Name: "Brandon Sanderson"}
		gomock.InOrder(
			inner.EXPECT().SearchAuthors(gomock.Any(), "Brandon Sanderson").Return(nil, nil),
			inner.EXPECT().CreateAuthor(gomock.Any(), brandon).Return(Author{ID: 7, Name: "Brandon Sanderson"}, nil),
			inner.EXPECT().SearchAuthors(gomock.Any(), "Brandon Sanderson").Return([]Author{{ID: 7, Name: "Brandon Sanderson"}}, nil),
		)

		before, err := c.SearchAuthors(ctx, "Brandon Sanderson")
		require.NoError(t, err)
		assert.Empty(t, before)

		_, err = c.CreateAuthor(ctx, brandon)
		require.NoError(t, err)

		after, err := c.SearchAuthors(ctx, "Brandon Sanderson")
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, int64(7), after[0].ID)
	})

	t.Run("failed invalidation bypasses the cache until it recovers", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := NewMockStore(ctrl)
		kv := newMemKV()
		c := NewCachedStore(inner, kv, time.Minute, logger.Nop(), nil)

		created := []Author{{ID: 7, Name: "Brandon Sanderson"}}
		gomock.InOrder(
			inner.EXPECT().SearchAuthors(gomock.Any(), "Brandon Sanderson").Return(nil, nil),
			inner.EXPECT().CreateAuthor(gomock.Any(), gomock.Any()).Return(created[0], nil),
			inner.EXPECT().SearchAuthors(gomock.Any(), "Brandon Sanderson").Return(created, nil).Times(2),
		)

		before, err := c.SearchAuthors(ctx, "Brandon Sanderson")
		require.NoError(t, err)
		assert.Empty(t, before)

		kv.failIncr = true
		_, err = c.CreateAuthor(ctx, Author{Name: "Brandon Sanderson"})
		require.NoError(t, err)

		after, err := c.SearchAuthors(ctx, "Brandon Sanderson")
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, int64(7), after[0].ID)

		kv.failIncr = false
		for i := 0; i < 2; i++ {
			out, err := c.SearchAuthors(ctx, "Brandon Sanderson")
			require.NoError(t, err)
			assert.Len(t, out, 1)
		}
	})

	t.Run("create of another type keeps author entries", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := NewMockStore(ctrl)
		c := NewCachedStore(inner, newMemKV(), time.Minute, logger.Nop(), nil)

		inner.EXPECT().SearchAuthors(gomock.Any(), "Tolkien").Return([]Author{tolkien}, nil).Times(1)
		inner.EXPECT().CreatePublisher(gomock.Any(), gomock.Any()).Return(Publisher{ID: 3, Name: "Allen & Unwin"}, nil)

		_, err := c.SearchAuthors(ctx, "Tolkien")
		require.NoError(t, err)
		_, err = c.CreatePublisher(ctx, Publisher{Name: "Allen & Unwin"})
		require.NoError(t, err)
		_, err = c.SearchAuthors(ctx, "Tolkien")
		require.NoError(t, err)
	})

	t.Run("store errors are not cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := NewMockStore(ctrl)
		c := NewCachedStore(inner, newMemKV(), time.Minute, logger.Nop(), nil)

		gomock.InOrder(
			inner.EXPECT().SearchAuthors(gomock.Any(), "Tolkien").Return(nil, errors.New("db down")),
			inner.EXPECT().SearchAuthors(gomock.Any(), "Tolkien").Return([]Author{tolkien}, nil),
		)

		_, err := c.SearchAuthors(ctx, "Tolkien")
		assert.Error(t, err)
		out, err := c.SearchAuthors(ctx, "Tolkien")
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("unavailable cache falls through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := NewMockStore(ctrl)
		kv := newMemKV()
		kv.failGet = true
		c := NewCachedStore(inner, kv, time.Minute, logger.Nop(), nil)

		inner.EXPECT().SearchAuthors(gomock.Any(), "Tolkien").Return([]Author{tolkien}, nil).Times(2)

		for i := 0; i < 2; i++ {
			out, err := c.SearchAuthors(ctx, "Tolkien")
			require.NoError(t, err)
			assert.Len(t, out, 1)
		}
	})
}

func TestCachedStore_SearchBooksKeyIncludesAuthors(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	inner := NewMockStore(ctrl)
	c := NewCachedStore(inner, newMemKV(), time.Minute, logger.Nop(), nil)

	inner.EXPECT().SearchBooks(gomock.Any(), BookQuery{Title: "Dune"}).Return([]Book{{ID: 1, Title: "Dune"}}, nil)
	inner.EXPECT().SearchBooks(gomock.Any(), BookQuery{Title: "Dune", AuthorNames: []string{"Frank Herbert"}}).Return([]Book{{ID: 1, Title: "Dune"}}, nil)
	inner.EXPECT().SearchBooks(gomock.Any(), BookQuery{Title: "Dune", AuthorIDs: []int64{4}}).Return([]Book{{ID: 1, Title: "Dune"}}, nil)

	_, err := c.SearchBooks(ctx, BookQuery{Title: "Dune"})
	require.NoError(t, err)
	_, err = c.SearchBooks(ctx, BookQuery{Title: "Dune", AuthorNames: []string{"Frank Herbert"}})
	require.NoError(t, err)
	_, err = c.SearchBooks(ctx, BookQuery{Title: "Dune", AuthorIDs: []int64{4}})
	require.NoError(t, err)
}

func TestCachedStore_PassesThroughGets(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := NewMockStore(ctrl)
	c := NewCachedStore(inner, newMemKV(), time.Minute, logger.Nop(), nil)

	inner.EXPECT().GetAuthor(gomock.Any(), int64(1)).Return(Author{ID: 1, Name: "J.R.R. Tolkien"}, nil)

	a, err := c.GetAuthor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "J.R.R. Tolkien", a.Name)
}
