package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"copier_bridge/internal/auth"
	"copier_bridge/internal/commands"
	"copier_bridge/internal/directory"
	"copier_bridge/internal/ledger"
	"copier_bridge/internal/models"
	"copier_bridge/internal/reconciler"
	"copier_bridge/internal/runstate"
	"copier_bridge/internal/storage"
	"copier_bridge/internal/watermark"
)

const maxBodyBytes = 1 << 20

// Services are the domain components behind the API
type Services struct {
	Ledger     *ledger.Ledger
	Reconciler *reconciler.Reconciler
	Commands   *commands.Queue
	State      *runstate.Register
	Watermark  *watermark.Service
	Directory  *directory.Resolver
}

// Handler serves the agent and dashboard API
type Handler struct {
	storage     *storage.Storage
	authService *auth.Service
	services    Services
	startedAt   time.Time
	logger      *slog.Logger
}

func New(
	storage *storage.Storage,
	authService *auth.Service,
	services Services,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		storage:     storage,
		authService: authService,
		services:    services,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handler) respondSuccess(w http.ResponseWriter, message string, data any) {
	h.respondJSON(w, http.StatusOK, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// respondServiceError maps domain errors to status codes. Anything that is not
// a caller mistake is logged and hidden behind msg.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), msg,
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, msg)
	}
}

// decodeBody reads a JSON body, rejecting unknown fields and trailing data
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, models.ErrInvalidInput)
	}

	if dec.More() {
		return fmt.Errorf("invalid request body: trailing data: %w", models.ErrInvalidInput)
	}

	return nil
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, models.ErrInvalidInput)
	}

	return v, nil
}
