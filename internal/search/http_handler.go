package search

import (
	"errors"
	"net/http"
	"strconv"

	"biblioteca/internal/catalog"
	"biblioteca/internal/httpx"
)

type HTTPHandler struct {
	gw *Gateway
}

func NewHTTPHandler(gw *Gateway) *HTTPHandler {
	return &HTTPHandler{gw: gw}
}

// Search handles GET /v1/catalog/search
// @Summary Search the shared catalog
// @Description Typed search over books, authors, publishers, series and genres. Exact matches rank first.
// @Tags catalog
// @Produce json
// @Param q query string true "Search text"
// @Param type query string false "book, author, publisher, series, genre or all" default(all)
// @Param limit query int false "Maximum results" default(10)
// @Param author query []string false "Author names narrowing a book search"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Router /v1/catalog/search [get]
func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	typ, err := catalog.ParseEntityType(query.Get("type"))
	if err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	res, err := h.gw.Search(r.Context(), Query{
		Text:        query.Get("q"),
		Type:        typ,
		Limit:       limit,
		AuthorNames: query["author"],
	})
	if errors.Is(err, ErrEmptyQuery) {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Query parameter q is required", []httpx.ErrorDetail{
			{Field: "q", Message: "q is required"},
		})
		return
	}
	if err != nil {
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
		return
	}

	httpx.JSONSuccess(w, r, res.Items, map[string]any{
		"type":         typ,
		"count":        len(res.Items),
		"inconclusive": res.Inconclusive,
	})
}
