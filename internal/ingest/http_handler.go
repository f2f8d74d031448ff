package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"biblioteca/internal/httpx"
)

type HTTPHandler struct {
	svc    *Service
	secret string
}

func NewHTTPHandler(svc *Service, secret string) *HTTPHandler {
	return &HTTPHandler{svc: svc, secret: secret}
}

// Ingest handles POST /internal/jobs/ingest
// @Summary Import books for a subject
// @Description Fetch books for a subject from Open Library and resolve each one into the catalog
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Internal-Secret header string true "Internal secret for authentication"
// @Param request body Request true "Subject and book limit"
// @Success 200 {object} httpx.SuccessResponse{data=Run}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 500 {object} httpx.ErrorResponse
// @Router /internal/jobs/ingest [post]
func (h *HTTPHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Internal-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid internal secret", nil)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); details != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", details)
		return
	}

	run, err := h.svc.Run(r.Context(), req)
	if err != nil {
		details := []httpx.ErrorDetail(nil)
		if run != nil {
			details = []httpx.ErrorDetail{{Field: "runId", Message: run.ID}}
		}
		httpx.JSONError(w, r, http.StatusInternalServerError, "INGEST_FAILED", err.Error(), details)
		return
	}

	httpx.JSONSuccess(w, r, run, nil)
}
