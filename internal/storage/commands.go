package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"copier_bridge/internal/models"
)

const commandColumns = `id, type, coalesce(payload, ''), status, result, created_at, executed_at`

func scanCommand(row rowScanner) (models.CopierCommand, error) {
	var cmd models.CopierCommand
	var payload string
	var createdAt int64
	var executedAt sql.NullInt64

	err := row.Scan(&cmd.ID, &cmd.Type, &payload, &cmd.Status, &cmd.Result, &createdAt, &executedAt)
	if err != nil {
		return models.CopierCommand{}, err
	}

	if payload != "" {
		cmd.Payload = []byte(payload)
	}

	cmd.CreatedAt = fromMicros(createdAt)
	if executedAt.Valid {
		t := fromMicros(executedAt.Int64)
		cmd.ExecutedAt = &t
	}

	return cmd, nil
}

func (s *Storage) queryCommands(ctx context.Context, query string, args ...any) ([]models.CopierCommand, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commands := make([]models.CopierCommand, 0)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}

		commands = append(commands, cmd)
	}

	return commands, rows.Err()
}

// CreateCommand stores a new pending command
func (s *Storage) CreateCommand(ctx context.Context, cmd models.CopierCommand) error {
	var payload any
	if len(cmd.Payload) > 0 {
		payload = string(cmd.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copier_commands (id, type, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, cmd.ID, string(cmd.Type), payload, cmd.Status, toMicros(cmd.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create command %s: %w", cmd.ID, err)
	}

	return nil
}

// PendingCommands returns pending commands oldest first
func (s *Storage) PendingCommands(ctx context.Context) ([]models.CopierCommand, error) {
	return s.queryCommands(ctx, `
		SELECT `+commandColumns+` FROM copier_commands
		WHERE status = 'pending'
		ORDER BY created_at, rowid
	`)
}

// ListCommands returns the newest commands, optionally filtered by status
func (s *Storage) ListCommands(ctx context.Context, status string, limit int) ([]models.CopierCommand, error) {
	query := `SELECT ` + commandColumns + ` FROM copier_commands`
	args := []any{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	return s.queryCommands(ctx, query, args...)
}

// GetCommand returns one command by id
func (s *Storage) GetCommand(ctx context.Context, id string) (models.CopierCommand, error) {
	cmd, err := scanCommand(s.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM copier_commands WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.CopierCommand{}, fmt.Errorf("command %s: %w", id, models.ErrNotFound)
	}

	return cmd, err
}

// CompleteCommand moves a pending command to a terminal status. It returns
// false when the command was not pending, so a repeated call changes nothing.
func (s *Storage) CompleteCommand(ctx context.Context, id, status, result string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE copier_commands SET status = ?, result = ?, executed_at = ?
		WHERE id = ? AND status = 'pending'
	`, status, result, toMicros(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete command %s: %w", id, err)
	}

	rows, _ := res.RowsAffected()

	return rows > 0, nil
}

// ExpirePendingBefore fails every pending command created before cutoff and
// returns the expired commands.
func (s *Storage) ExpirePendingBefore(ctx context.Context, cutoff, at time.Time, result string) ([]models.CopierCommand, error) {
	return s.queryCommands(ctx, `
		UPDATE copier_commands SET status = 'failed', result = ?, executed_at = ?
		WHERE status = 'pending' AND created_at < ?
		RETURNING `+commandColumns,
		result, toMicros(at), toMicros(cutoff))
}
