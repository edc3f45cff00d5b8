package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	day := h.now()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, ok := parseDateParam(w, r, "day")
		if !ok {
			return
		}
		day = *parsed
	}

	stats, err := h.reports.DashboardStats(r.Context(), day)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) popularProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.reports.PopularProducts(r.Context(), queryLimit(r, 5, 50))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.reports.LowStock(r.Context(), queryLimit(r, 20, 100))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) serviceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.ServiceStats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		respondBadRequest(w, "year", "must be a number")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		respondBadRequest(w, "month", "must be a number")
		return
	}

	days, err := h.reports.MonthlySales(r.Context(), year, month)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, days)
}
