package api

import (
	"net/http"

	"copier_bridge/internal/models"
)

func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.services.State.Get(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get copier state")
		return
	}

	h.respondSuccess(w, "", state)
}

// HandleSetState merges the provided fields into the run state
func (h *Handler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	var upd models.StateUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		h.respondServiceError(w, r, err, "Failed to update copier state")
		return
	}

	state, err := h.services.State.Set(r.Context(), upd)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to update copier state")
		return
	}

	h.respondSuccess(w, "State updated", state)
}
