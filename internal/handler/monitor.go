package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andres10976/ticketwatch/internal/config"
	"github.com/andres10976/ticketwatch/internal/model"
	"github.com/andres10976/ticketwatch/internal/service/policy"
)

type monitorStateStore interface {
	Get(ctx context.Context) (*model.MonitorState, error)
}

type watermarkSource interface {
	Watermarks() []policy.Entry
}

// MonitorHandler serves the live view of the running monitor.
type MonitorHandler struct {
	repo        monitorStateStore
	monitor     watermarkSource
	loadTargets func() config.TargetFile
}

func NewMonitorHandler(repo monitorStateStore, mon watermarkSource, loadTargets func() config.TargetFile) *MonitorHandler {
	return &MonitorHandler{repo: repo, monitor: mon, loadTargets: loadTargets}
}

func (h *MonitorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/monitor/status", h.Status)
	r.Get("/tickets", h.Tickets)
	r.Get("/targets", h.Targets)
	r.Get("/healthz", h.Health)
}

func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.repo.Get(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), "failed to get monitor status")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Tickets lists the last communicated status of every ticket seen since start.
func (h *MonitorHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	entries := h.monitor.Watermarks()
	if entries == nil {
		entries = []policy.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": entries,
		"total":   len(entries),
	})
}

func (h *MonitorHandler) Targets(w http.ResponseWriter, r *http.Request) {
	tf := h.loadTargets()
	targets := tf.TargetTickets
	if targets == nil {
		targets = []model.Target{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"targets":        targets,
		"check_interval": int(tf.Interval().Seconds()),
	})
}

func (h *MonitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
