package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apimw "copier_bridge/internal/api/middleware"
	"copier_bridge/internal/models"
	"copier_bridge/internal/watermark"
)

// HandleGetAccounts lists every account ordered by name
func (h *Handler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.storage.GetAccounts(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get accounts")
		return
	}

	h.respondSuccess(w, "", accounts)
}

// HandleAccountChanges returns accounts changed after ?since= and the next watermark
func (h *Handler) HandleAccountChanges(w http.ResponseWriter, r *http.Request) {
	since, err := watermark.Parse(r.URL.Query().Get("since"))
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get account changes")
		return
	}

	changes, err := h.services.Watermark.Since(r.Context(), since)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get account changes")
		return
	}

	h.respondSuccess(w, "", changes)
}

// HandlePatchAccount edits the dashboard-owned fields of one account
func (h *Handler) HandlePatchAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	var patch models.AccountPatch
	if err := decodeBody(w, r, &patch); err != nil {
		h.respondServiceError(w, r, err, "Failed to update account")
		return
	}

	if patch.IsActive == nil && patch.ContractSize == nil {
		h.respondError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	if patch.ContractSize != nil && *patch.ContractSize < 1 {
		h.respondError(w, http.StatusBadRequest, "contract_size must be at least 1")
		return
	}

	state, err := h.services.State.Get(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to update account")
		return
	}

	acc, err := h.storage.PatchAccount(ctx, id, patch, state.IsRunning)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to update account")
		return
	}

	username, _ := apimw.GetUsername(ctx)
	details, _ := json.Marshal(map[string]any{
		"account_id": acc.ID,
		"patch":      patch,
		"by":         username,
	})

	if err := h.storage.AddLog(ctx, models.ActivityLog{
		Level:   "INFO",
		Action:  "account_patched",
		Message: fmt.Sprintf("Account %s updated", acc.AccountName),
		Details: string(details),
	}); err != nil {
		h.logger.Warn("Failed to write activity log", slog.Any("error", err))
	}

	h.logger.Info("✏️ Account updated",
		slog.String("account", acc.AccountName),
		slog.Bool("is_active", acc.IsActive),
		slog.Int("contract_size", acc.ContractSize))

	h.respondSuccess(w, "Account updated", acc)
}
