package api

import (
	"net/http"

	"copier_bridge/internal/ledger"
	"copier_bridge/internal/models"
	"copier_bridge/internal/reconciler"
)

type SubmitTradeResponse struct {
	ID int64 `json:"id"`
}

// HandleSubmitTrade journals one master fill reported by the agent
func (h *Handler) HandleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	var sub ledger.Submission
	if err := decodeBody(w, r, &sub); err != nil {
		h.respondServiceError(w, r, err, "Failed to record trade")
		return
	}

	id, err := h.services.Ledger.Submit(r.Context(), sub)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to record trade")
		return
	}

	h.respondSuccess(w, "Trade recorded", SubmitTradeResponse{ID: id})
}

// HandleGetTrades lists recent trades, newest first
func (h *Handler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", ledger.DefaultLimit)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get trades")
		return
	}

	trades, err := h.services.Ledger.Recent(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get trades")
		return
	}

	h.respondSuccess(w, "", trades)
}

// HandleSync applies an account snapshot from the agent
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req reconciler.Request
	if err := decodeBody(w, r, &req); err != nil {
		h.respondServiceError(w, r, err, "Failed to sync accounts")
		return
	}

	result, err := h.services.Reconciler.Sync(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to sync accounts")
		return
	}

	h.respondSuccess(w, "Sync applied", result)
}

// HandleGetStats returns the dashboard header numbers
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tradesToday, err := h.services.Ledger.CountToday(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get stats")
		return
	}

	active, err := h.storage.CountActiveAccounts(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get stats")
		return
	}

	last, err := h.services.Ledger.Latest(ctx)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get stats")
		return
	}

	h.respondSuccess(w, "", models.DashboardStats{
		TradesToday:    tradesToday,
		ActiveAccounts: active,
		LastTrade:      last,
	})
}
