package api

import (
	"fmt"
	"net/http"

	"copier_bridge/internal/models"
)

const maxResolveNames = 5000

type ResolveRequest struct {
	AccountNames []string `json:"account_names"`
}

// HandleResolveDirectory maps account names to client and agency labels.
// Unmatched names are absent from the result.
func (h *Handler) HandleResolveDirectory(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondServiceError(w, r, err, "Failed to resolve accounts")
		return
	}

	if len(req.AccountNames) > maxResolveNames {
		err := fmt.Errorf("at most %d account names per call: %w", maxResolveNames, models.ErrInvalidInput)
		h.respondServiceError(w, r, err, "Failed to resolve accounts")

		return
	}

	labels, err := h.services.Directory.Resolve(r.Context(), req.AccountNames)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to resolve accounts")
		return
	}

	h.respondSuccess(w, "", labels)
}
