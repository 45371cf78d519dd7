package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"copier_bridge/internal/models"
)

// GetState returns the run state singleton, or the zero state when it was never written
func (s *Storage) GetState(ctx context.Context) (models.CopierState, error) {
	var state models.CopierState
	var isRunningInt int
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT is_running, master_account, updated_at FROM copier_state WHERE id = 1
	`).Scan(&isRunningInt, &state.MasterAccount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CopierState{}, nil
	}

	if err != nil {
		return models.CopierState{}, fmt.Errorf("failed to read copier state: %w", err)
	}

	state.IsRunning = isRunningInt == 1
	if updatedAt > 0 {
		state.UpdatedAt = fromMicros(updatedAt)
	}

	return state, nil
}

// MergeState writes the non-nil fields of upd and stamps updated_at
func (s *Storage) MergeState(ctx context.Context, upd models.StateUpdate, at time.Time) (models.CopierState, error) {
	var state models.CopierState
	var isRunningInt int
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO copier_state (id, is_running, master_account, updated_at)
		VALUES (1, coalesce(?, 0), coalesce(?, ''), ?)
		ON CONFLICT(id) DO UPDATE SET
			is_running = coalesce(?, copier_state.is_running),
			master_account = coalesce(?, copier_state.master_account),
			updated_at = excluded.updated_at
		RETURNING is_running, master_account, updated_at
	`, nullableBool(upd.IsRunning), nullable(upd.MasterAccount), toMicros(at),
		nullableBool(upd.IsRunning), nullable(upd.MasterAccount)).Scan(&isRunningInt, &state.MasterAccount, &updatedAt)
	if err != nil {
		return models.CopierState{}, fmt.Errorf("failed to write copier state: %w", err)
	}

	state.IsRunning = isRunningInt == 1
	state.UpdatedAt = fromMicros(updatedAt)

	return state, nil
}
