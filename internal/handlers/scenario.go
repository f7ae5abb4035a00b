package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/story-relay/internal/storage"
	"github.com/jwebster45206/story-relay/pkg/scenario"
)

// ScenarioHandler serves the read-only scenario library.
// GET /v1/scenarios and GET /v1/scenarios/{id}
type ScenarioHandler struct {
	log     *slog.Logger
	storage storage.Storage
}

func NewScenarioHandler(log *slog.Logger, storage storage.Storage) *ScenarioHandler {
	return &ScenarioHandler{
		log:     log,
		storage: storage,
	}
}

func (h *ScenarioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, h.log, http.StatusMethodNotAllowed, msgMethodNotAllowed, "")
	}
}

func (h *ScenarioHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/scenarios"), "/")
	if id == "" {
		h.handleList(w, r)
		return
	}

	if !scenario.ValidID(id) {
		writeError(w, h.log, http.StatusBadRequest, "Invalid scenario id", "")
		return
	}

	sc, err := h.storage.GetScenario(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrScenarioNotFound) {
			writeError(w, h.log, http.StatusNotFound, "Scenario not found", "")
			return
		}
		h.log.Error("Failed to get scenario", "error", err, "scenario_id", id)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to retrieve scenario", "")
		return
	}
	writeJSON(w, h.log, http.StatusOK, sc)
}

func (h *ScenarioHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListScenarios(r.Context())
	if err != nil {
		h.log.Error("Failed to list scenarios", "error", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to list scenarios", "")
		return
	}
	writeJSON(w, h.log, http.StatusOK, list)
}
