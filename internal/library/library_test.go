package library

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"biblioteca/internal/httpx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Add(ctx context.Context, rec Record) (Record, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(Record), args.Error(1)
}

func (m *mockRepo) List(ctx context.Context, userID, status string, limit, offset int) ([]Record, int, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]Record), args.Int(1), args.Error(2)
}

func (m *mockRepo) Update(ctx context.Context, userID string, id int64, c Changes) (Record, error) {
	args := m.Called(ctx, userID, id, c)
	return args.Get(0).(Record), args.Error(1)
}

func (m *mockRepo) Delete(ctx context.Context, userID string, id int64) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func TestService_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("stores user fields against the catalog book", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)
		price := 12.5

		repo.On("Add", ctx, mock.MatchedBy(func(r Record) bool {
			return r.UserID == "u-1" && r.CatalogBookID == 42 && r.Status == StatusReading &&
				*r.PersonalRating == 4 && *r.Price == 12.5 && r.PersonalNotes == "re-read"
		})).Return(Record{ID: 1, UserID: "u-1", CatalogBookID: 42, Status: StatusReading}, nil)

		rec, err := svc.Add(ctx, "u-1", 42, Details{
			Status:         "reading",
			PersonalRating: intPtr(4),
			PersonalNotes:  "re-read",
			Price:          &price,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.ID)
		repo.AssertExpectations(t)
	})

	t.Run("defaults status", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)
		repo.On("Add", ctx, mock.MatchedBy(func(r Record) bool { return r.Status == StatusWantToRead })).
			Return(Record{ID: 2}, nil)

		_, err := svc.Add(ctx, "u-1", 42, Details{})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("rejects unresolved book", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)

		_, err := svc.Add(ctx, "u-1", 0, Details{Status: StatusRead})
		assert.ErrorIs(t, err, ErrMissingCatalogRef)
		repo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)

		_, err := svc.Add(ctx, "u-1", 1, Details{Status: "FINISHED"})
		assert.Error(t, err)
		_, err = svc.Add(ctx, "u-1", 1, Details{Status: StatusRead, PersonalRating: intPtr(6)})
		assert.Error(t, err)
		_, err = svc.Add(ctx, "", 1, Details{Status: StatusRead})
		assert.Error(t, err)
		repo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	})

	t.Run("duplicate is passed through", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)
		repo.On("Add", ctx, mock.Anything).Return(Record{}, ErrAlreadyInLibrary)

		_, err := svc.Add(ctx, "u-1", 42, Details{Status: StatusRead})
		assert.ErrorIs(t, err, ErrAlreadyInLibrary)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := NewService(repo)

	repo.On("List", ctx, "u-1", StatusOnHold, 20, 0).Return([]Record{{ID: 3}}, 1, nil)
	repo.On("List", ctx, "u-1", "", 20, 0).Return([]Record{{ID: 3}, {ID: 4}}, 2, nil)

	out, total, err := svc.List(ctx, "u-1", "on_hold", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, out, 1)

	_, total, err = svc.List(ctx, "u-1", "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, _, err = svc.List(ctx, "u-1", "LOST", 20, 0)
	assert.Error(t, err)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes status and passes only given fields", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)
		fav := true

		repo.On("Update", ctx, "u-1", int64(5), mock.MatchedBy(func(c Changes) bool {
			return *c.Status == StatusRead && *c.ReadingProgress == 100 && *c.IsFavorite &&
				c.PersonalRating == nil && c.Price == nil && c.PersonalNotes == nil
		})).Return(Record{ID: 5, UserID: "u-1", Status: StatusRead, ReadingProgress: 100, IsFavorite: true}, nil)

		rec, err := svc.Update(ctx, "u-1", 5, Changes{
			Status:          strPtr(" read "),
			ReadingProgress: intPtr(100),
			IsFavorite:      &fav,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusRead, rec.Status)
		repo.AssertExpectations(t)
	})

	t.Run("rejects bad changes", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)
		negative := -1.0

		for name, c := range map[string]Changes{
			"empty":    {},
			"status":   {Status: strPtr("FINISHED")},
			"rating":   {PersonalRating: intPtr(0)},
			"progress": {ReadingProgress: intPtr(101)},
			"price":    {Price: &negative},
		} {
			_, err := svc.Update(ctx, "u-1", 5, c)
			assert.ErrorIs(t, err, ErrInvalidChange, name)
		}
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("another user's record is not found", func(t *testing.T) {
		repo := new(mockRepo)
		svc := NewService(repo)
		repo.On("Update", ctx, "u-2", int64(5), mock.Anything).Return(Record{}, ErrNotFound)

		_, err := svc.Update(ctx, "u-2", 5, Changes{PersonalNotes: strPtr("mine now")})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestHTTPHandler_Update(t *testing.T) {
	repo := new(mockRepo)
	handler := NewHTTPHandler(NewService(repo))

	call := func(id, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPatch, "/v1/library/books/"+id, strings.NewReader(body))
		r.SetPathValue("id", id)
		r = r.WithContext(httpx.ContextWithUser(r.Context(), "u-1", "user"))
		handler.Update(w, r)
		return w
	}

	repo.On("Update", mock.Anything, "u-1", int64(7), mock.MatchedBy(func(c Changes) bool {
		return c.PersonalRating != nil && *c.PersonalRating == 5 && c.Status != nil && *c.Status == StatusRead
	})).Return(Record{ID: 7, Status: StatusRead, PersonalRating: intPtr(5)}, nil).Once()
	repo.On("Update", mock.Anything, "u-1", int64(8), mock.Anything).Return(Record{}, ErrNotFound).Once()
	repo.On("Update", mock.Anything, "u-1", int64(9), mock.Anything).Return(Record{}, errors.New("db down")).Once()

	ok := call("7", `{"status":"READ","personalRating":5}`)
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Contains(t, ok.Body.String(), `"personalRating":5`)

	assert.Equal(t, http.StatusNotFound, call("8", `{"isOwned":true}`).Code)
	assert.Equal(t, http.StatusInternalServerError, call("9", `{"isOwned":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, call("abc", `{"isOwned":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, call("7", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, call("7", `{"personalRating":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, call("7", `{}`).Code)
	repo.AssertExpectations(t)

	t.Run("unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPatch, "/v1/library/books/7", strings.NewReader(`{}`))
		r.SetPathValue("id", "7")

		handler.Update(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHTTPHandler_List(t *testing.T) {
	repo := new(mockRepo)
	handler := NewHTTPHandler(NewService(repo))

	t.Run("unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/library/books", nil)

		handler.List(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		repo.On("List", mock.Anything, "u-1", StatusRead, 5, 10).Return([]Record{{ID: 9}}, 11, nil).Once()

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/library/books?status=READ&limit=5&offset=10", nil)
		r = r.WithContext(httpx.ContextWithUser(r.Context(), "u-1", "user"))

		handler.List(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":11`)
	})
}

func TestHTTPHandler_Remove(t *testing.T) {
	repo := new(mockRepo)
	handler := NewHTTPHandler(NewService(repo))

	call := func(id string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodDelete, "/v1/library/books/"+id, nil)
		r.SetPathValue("id", id)
		r = r.WithContext(httpx.ContextWithUser(r.Context(), "u-1", "user"))
		handler.Remove(w, r)
		return w
	}

	repo.On("Delete", mock.Anything, "u-1", int64(7)).Return(nil).Once()
	repo.On("Delete", mock.Anything, "u-1", int64(8)).Return(ErrNotFound).Once()
	repo.On("Delete", mock.Anything, "u-1", int64(9)).Return(errors.New("db down")).Once()

	assert.Equal(t, http.StatusNoContent, call("7").Code)
	assert.Equal(t, http.StatusNotFound, call("8").Code)
	assert.Equal(t, http.StatusInternalServerError, call("9").Code)
	assert.Equal(t, http.StatusBadRequest, call("abc").Code)
	repo.AssertExpectations(t)
}
