package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"biblioteca/internal/catalog"
	"biblioteca/internal/httpx"
	"biblioteca/internal/library"
)

type HTTPHandler struct {
	resolver *Resolver
}

func NewHTTPHandler(resolver *Resolver) *HTTPHandler {
	return &HTTPHandler{resolver: resolver}
}

// Ensure handles POST /v1/catalog/{type}/ensure
// @Summary Reuse or create a catalog entity
// @Description Returns the existing entity when the name matches exactly, otherwise creates it (201).
// @Tags catalog
// @Accept json
// @Produce json
// @Param type path string true "authors, publishers, series or books"
// @Success 200 {object} httpx.SuccessResponse
// @Success 201 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /v1/catalog/{type}/ensure [post]
func (h *HTTPHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	typ, err := catalog.ParseEntityType(r.PathValue("type"))
	if err != nil || typ == catalog.TypeAll || typ == catalog.TypeGenre {
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Unknown catalog type", nil)
		return
	}

	var (
		out     any
		created bool
	)
	switch typ {
	case catalog.TypeAuthor:
		var a catalog.Author
		if !decodeValid(w, r, &a) {
			return
		}
		out, created, err = h.resolver.EnsureAuthor(r.Context(), a)
	case catalog.TypePublisher:
		var p catalog.Publisher
		if !decodeValid(w, r, &p) {
			return
		}
		out, created, err = h.resolver.EnsurePublisher(r.Context(), p)
	case catalog.TypeSeries:
		var s catalog.Series
		if !decodeValid(w, r, &s) {
			return
		}
		out, created, err = h.resolver.EnsureSeries(r.Context(), s)
	case catalog.TypeBook:
		var b catalog.Book
		if !decodeValid(w, r, &b) {
			return
		}
		out, created, err = h.resolver.EnsureBook(r.Context(), b)
	}

	if err != nil {
		writeEnsureError(w, r, err)
		return
	}

	meta := map[string]any{"created": created}
	if created {
		httpx.JSONSuccessCreated(w, r, out, meta)
		return
	}
	httpx.JSONSuccess(w, r, out, meta)
}

// AddBook handles POST /v1/library/books
// @Summary Add a book to the caller's library
// @Description Resolves authors, publisher, series and the book against the catalog, then stores the library record.
// @Tags library
// @Accept json
// @Produce json
// @Success 201 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /v1/library/books [post]
func (h *HTTPHandler) AddBook(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFrom(r)
	if userID == "" {
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	var req BookRequest
	if !decodeValid(w, r, &req) {
		return
	}

	rec, err := h.resolver.ResolveAndAttach(r.Context(), userID, req)
	if err != nil {
		writeResolveError(w, r, err)
		return
	}

	httpx.JSONSuccessCreated(w, r, rec, nil)
}

func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return false
	}
	if details := httpx.ValidateStruct(dst); details != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", details)
		return false
	}
	return true
}

func writeEnsureError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidEntity):
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ErrCreateRejected):
		httpx.JSONError(w, r, http.StatusBadGateway, "CREATE_FAILED", "Catalog did not create the entry, nothing was saved", nil)
	default:
		httpx.JSONError(w, r, http.StatusBadGateway, "RESOLUTION_FAILED", "Catalog is unavailable, nothing was saved", nil)
	}
}

func writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	var re *Error
	switch {
	case errors.Is(err, library.ErrAlreadyInLibrary):
		httpx.JSONError(w, r, http.StatusConflict, "ALREADY_IN_LIBRARY", "Book is already in your library", nil)
	case errors.As(err, &re) && re.PartialWrite():
		details := make([]httpx.ErrorDetail, 0, len(re.Created))
		for _, c := range re.Created {
			details = append(details, httpx.ErrorDetail{
				Field:   string(c.Type),
				Message: fmt.Sprintf("created %s %d (%s)", c.Type, c.ID, c.Label()),
			})
		}
		httpx.JSONError(w, r, http.StatusBadGateway, "PARTIAL_CATALOG_WRITE",
			"Some catalog entries were created but the book was not added to your library", details)
	case errors.Is(err, ErrInvalidEntity), errors.Is(err, ErrCreateRejected), errors.Is(err, ErrCatalogUnavailable):
		writeEnsureError(w, r, err)
	default:
		httpx.JSONError(w, r, http.StatusBadGateway, "RESOLUTION_FAILED", "Nothing was saved, try again", nil)
	}
}
