package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andres10976/ticketwatch/internal/model"
)

type alertStore interface {
	ListPaginated(ctx context.Context, page, perPage int) ([]model.Alert, int, error)
}

type AlertHandler struct {
	repo alertStore
}

func NewAlertHandler(repo alertStore) *AlertHandler {
	return &AlertHandler{repo: repo}
}

func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Get("/alerts", h.List)
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 1<<20)
	perPage := queryInt(r, "per_page", 20, 100)

	alerts, total, err := h.repo.ListPaginated(r.Context(), page, perPage)
	if err != nil {
		writeError(w, errorStatus(err), "failed to list alerts")
		return
	}

	if alerts == nil {
		alerts = []model.Alert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":   alerts,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}
