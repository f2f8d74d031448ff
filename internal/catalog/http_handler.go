package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"biblioteca/internal/httpx"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Get handles GET /v1/catalog/{type}/{id}
// @Summary Get a catalog entity
// @Description Retrieve a book, author, publisher or series from the shared catalog
// @Tags catalog
// @Produce json
// @Param type path string true "books, authors, publishers or series"
// @Param id path int true "Catalog id"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 500 {object} httpx.ErrorResponse
// @Router /v1/catalog/{type}/{id} [get]
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseEntityType(r.PathValue("type"))
	if err != nil || typ == TypeAll || typ == TypeGenre {
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Unknown catalog type", nil)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid id", nil)
		return
	}

	entity, err := h.svc.Get(r.Context(), typ, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Entity not found in catalog", nil)
			return
		}
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
		return
	}

	httpx.JSONSuccess(w, r, entity, nil)
}
