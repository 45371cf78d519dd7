// Package runstate holds the global {is_running, master_account} singleton.
// Writes are last-writer-wins merges; re-asserting the same state is harmless.
package runstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"copier_bridge/internal/metrics"
	"copier_bridge/internal/models"
	"copier_bridge/internal/notify"
)

// Store persists the singleton row and keeps account status in line with it
type Store interface {
	GetState(ctx context.Context) (models.CopierState, error)
	MergeState(ctx context.Context, upd models.StateUpdate, at time.Time) (models.CopierState, error)
	ApplyRunState(ctx context.Context, isRunning bool) (int64, error)
	AddLog(ctx context.Context, log models.ActivityLog) error
}

type Register struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, notifier notify.Notifier, logger *slog.Logger) *Register {
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Register{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the current state; an uninitialized register reads as stopped with no master
func (r *Register) Get(ctx context.Context) (models.CopierState, error) {
	return r.store.GetState(ctx)
}

// Set merges upd into the singleton and always stamps updated_at. When
// is_running is written, account status is re-derived from it.
func (r *Register) Set(ctx context.Context, upd models.StateUpdate) (models.CopierState, error) {
	prev, err := r.store.GetState(ctx)
	if err != nil {
		// Only used to detect transitions
		r.logger.Warn("Failed to read previous copier state", slog.Any("error", err))
	}

	state, err := r.store.MergeState(ctx, upd, r.now())
	if err != nil {
		return models.CopierState{}, err
	}

	metrics.SetCopierRunning(state.IsRunning)

	if prev.IsRunning != state.IsRunning {
		r.recordTransition(ctx, state)
	}

	if upd.IsRunning != nil {
		n, err := r.store.ApplyRunState(ctx, state.IsRunning)
		if err != nil {
			return state, fmt.Errorf("apply run state to accounts: %w", err)
		}

		if n > 0 {
			r.logger.Debug("Account status re-derived",
				slog.Bool("is_running", state.IsRunning),
				slog.Int64("accounts", n))
		}
	}

	return state, nil
}

func (r *Register) recordTransition(ctx context.Context, state models.CopierState) {
	action, message := "copier_started", "Copier started"
	if !state.IsRunning {
		action, message = "copier_stopped", "Copier stopped"
	}

	r.logger.Info("🔁 "+message, slog.String("master_account", state.MasterAccount))

	details, _ := json.Marshal(map[string]any{"master_account": state.MasterAccount})
	if err := r.store.AddLog(ctx, models.ActivityLog{
		Level:   "INFO",
		Action:  action,
		Message: message,
		Details: string(details),
	}); err != nil {
		r.logger.Warn("Failed to write activity log", slog.String("action", action), slog.Any("error", err))
	}

	if !state.IsRunning {
		r.notifier.Notify(ctx, fmt.Sprintf("⏹ Copier stopped (master %s)", state.MasterAccount))
	}
}
