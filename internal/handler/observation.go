package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andres10976/ticketwatch/internal/model"
)

type observationStore interface {
	Latest(ctx context.Context) ([]model.Observation, error)
	ListByKey(ctx context.Context, key string, limit int) ([]model.Observation, error)
}

type ObservationHandler struct {
	repo observationStore
}

func NewObservationHandler(repo observationStore) *ObservationHandler {
	return &ObservationHandler{repo: repo}
}

func (h *ObservationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/observations", h.List)
}

// List returns the history of one ticket when ?key= is given, otherwise the
// latest observation of every ticket.
func (h *ObservationHandler) List(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	var (
		obs []model.Observation
		err error
	)
	if key != "" {
		obs, err = h.repo.ListByKey(r.Context(), key, queryInt(r, "limit", 50, 500))
	} else {
		obs, err = h.repo.Latest(r.Context())
	}
	if err != nil {
		writeError(w, errorStatus(err), "failed to list observations")
		return
	}

	if obs == nil {
		obs = []model.Observation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"observations": obs,
		"total":        len(obs),
	})
}
