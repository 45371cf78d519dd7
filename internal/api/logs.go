package api

import (
	"net/http"
)

const (
	defaultLogsLimit = 100
	maxLogsLimit     = 1000
)

// HandleGetLogs pages through the audit trail, newest first
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLogsLimit)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get logs")
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get logs")
		return
	}

	if limit <= 0 {
		limit = defaultLogsLimit
	}

	logs, err := h.storage.GetLogs(r.Context(), min(limit, maxLogsLimit), max(offset, 0))
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get logs")
		return
	}

	h.respondSuccess(w, "", logs)
}
