package dedupe

import (
	"encoding/json"
	"errors"
	"net/http"

	"biblioteca/internal/catalog"
	"biblioteca/internal/httpx"
	"biblioteca/internal/search"
)

type HTTPHandler struct {
	detector *Detector
}

func NewHTTPHandler(detector *Detector) *HTTPHandler {
	return &HTTPHandler{detector: detector}
}

type detectReq struct {
	Name      string  `json:"name" validate:"notblank"`
	Type      string  `json:"type" validate:"required"`
	AuthorIDs []int64 `json:"authorIds"`
}

// Detect handles POST /v1/catalog/duplicates
// @Summary Check a candidate entity for duplicates
// @Tags catalog
// @Accept json
// @Produce json
// @Success 200 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Router /v1/catalog/duplicates [post]
func (h *HTTPHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req detectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); details != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", details)
		return
	}

	typ, err := catalog.ParseEntityType(req.Type)
	if err != nil || typ == catalog.TypeAll {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "type must name a single entity type", []httpx.ErrorDetail{
			{Field: "type", Message: "type must be one of: book author publisher series genre"},
		})
		return
	}

	var v Verdict
	if typ == catalog.TypeBook {
		v, err = h.detector.DetectBook(r.Context(), req.Name, req.AuthorIDs)
	} else {
		v, err = h.detector.Detect(r.Context(), req.Name, typ)
	}
	if errors.Is(err, search.ErrEmptyQuery) {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
		return
	}
	if err != nil {
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
		return
	}

	httpx.JSONSuccess(w, r, v, nil)
}
