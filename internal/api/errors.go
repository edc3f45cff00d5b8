package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/stationery-pos/internal/database"
	"go.uber.org/zap"
)

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func mapError(err error) (int, errorPayload) {
	var (
		vErr     *database.ValidationError
		stockErr *database.InsufficientStockError
		nfErr    *database.NotFoundError
		cErr     *database.ConflictError
	)

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: vErr.Error(),
			Field:   vErr.Field,
		}
	case errors.As(err, &stockErr):
		requested, available := stockErr.Requested, stockErr.Available
		return http.StatusConflict, errorPayload{
			Type:      "insufficient_stock",
			Message:   stockErr.Error(),
			ProductID: stockErr.ProductID,
			Requested: &requested,
			Available: &available,
		}
	case errors.As(err, &nfErr):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: nfErr.Error(),
		}
	case errors.As(err, &cErr):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: cErr.Error(),
		}
	case errors.Is(err, database.ErrStorage):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "storage_unavailable",
			Message: "storage temporarily unavailable, retry the request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// respondError writes err as a JSON error body. Server-side failures are
// logged with the request id; client errors are not.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	respondJSON(w, status, errorResponse{Error: payload})
}

func respondBadRequest(w http.ResponseWriter, field, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: errorPayload{
		Type:    "validation_error",
		Message: message,
		Field:   field,
	}})
}
