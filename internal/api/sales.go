package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/safar/stationery-pos/internal/metrics"
	"github.com/safar/stationery-pos/internal/models"
)

type saleCreatedResponse struct {
	SaleID string       `json:"sale_id"`
	Status string       `json:"status"`
	Total  string       `json:"total"`
	Sale   *models.Sale `json:"sale"`
}

type saleCancelledResponse struct {
	SaleID string       `json:"sale_id"`
	Status string       `json:"status"`
	Sale   *models.Sale `json:"sale"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := h.decode(r, &req, false); err != nil {
		h.metrics.RecordSaleOperation(metrics.OperationCreateSale, err)
		h.respondError(w, r, err)
		return
	}

	sale, err := h.sales.CreateSale(r.Context(), req.toCore())
	h.metrics.RecordSaleOperation(metrics.OperationCreateSale, err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.metrics.ObserveSaleTotal(sale.Total.InexactFloat64())
	h.metrics.AddStockMovement("out", unitsOf(sale))

	respondJSON(w, http.StatusCreated, saleCreatedResponse{
		SaleID: sale.ID,
		Status: sale.Status,
		Total:  sale.Total.StringFixed(2),
		Sale:   sale,
	})
}

func (h *Handler) cancelSale(w http.ResponseWriter, r *http.Request) {
	var req cancelSaleRequest
	if err := h.decode(r, &req, true); err != nil {
		h.metrics.RecordSaleOperation(metrics.OperationCancelSale, err)
		h.respondError(w, r, err)
		return
	}

	sale, err := h.sales.CancelSale(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.metrics.RecordSaleOperation(metrics.OperationCancelSale, err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.metrics.AddStockMovement("in", unitsOf(sale))

	respondJSON(w, http.StatusOK, saleCancelledResponse{
		SaleID: sale.ID,
		Status: sale.Status,
		Sale:   sale,
	})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

// listSales pages by offset, or by keyset when a cursor parameter is
// present (an empty cursor starts from the newest sale).
func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("cursor") {
		result, err := h.sales.ListSalesCursor(r.Context(), query.Get("cursor"), queryLimit(r, 20, 100))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	page, pageSize := pagination(r)
	result, err := h.sales.ListSales(r.Context(), page, pageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	from, ok := parseDateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseDateParam(w, r, "to")
	if !ok {
		return
	}

	summary, err := h.reports.Summary(r.Context(), from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// parseDateParam reads an optional YYYY-MM-DD query parameter. On a
// malformed value it writes the 400 response and returns ok=false.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		respondBadRequest(w, name, "must be in YYYY-MM-DD format")
		return nil, false
	}
	return &t, true
}

func unitsOf(sale *models.Sale) int {
	units := 0
	for _, item := range sale.Items {
		units += item.Quantity
	}
	return units
}
