package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"copier_bridge/internal/commands"
	"copier_bridge/internal/models"
)

type EnqueueCommandRequest struct {
	Type    models.CommandType `json:"type"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

type AckCommandRequest struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// HandleEnqueueCommand queues an operator instruction for the agent
func (h *Handler) HandleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	var req EnqueueCommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondServiceError(w, r, err, "Failed to enqueue command")
		return
	}

	cmd, err := h.services.Commands.Enqueue(r.Context(), req.Type, req.Payload)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to enqueue command")
		return
	}

	h.respondJSON(w, http.StatusCreated, SuccessResponse{
		Message: "Command queued",
		Data:    cmd,
	})
}

// HandleListCommands lists recent commands for the dashboard
func (h *Handler) HandleListCommands(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", commands.DefaultListLimit)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to list commands")
		return
	}

	list, err := h.services.Commands.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to list commands")
		return
	}

	h.respondSuccess(w, "", list)
}

// HandlePendingCommands returns pending commands oldest first
func (h *Handler) HandlePendingCommands(w http.ResponseWriter, r *http.Request) {
	pending, err := h.services.Commands.Poll(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to get pending commands")
		return
	}

	h.respondSuccess(w, "", pending)
}

// HandleAckCommand records the agent's outcome for a command
func (h *Handler) HandleAckCommand(w http.ResponseWriter, r *http.Request) {
	var req AckCommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondServiceError(w, r, err, "Failed to acknowledge command")
		return
	}

	cmd, err := h.services.Commands.Acknowledge(r.Context(), mux.Vars(r)["id"], req.Status, req.Result)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to acknowledge command")
		return
	}

	h.respondSuccess(w, "Command acknowledged", cmd)
}
