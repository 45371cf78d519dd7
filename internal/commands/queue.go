// Package commands is the dashboard-to-agent outbox. The dashboard enqueues,
// the agent polls pending commands and acknowledges each one into a
// terminal status.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"copier_bridge/internal/metrics"
	"copier_bridge/internal/models"
	"copier_bridge/internal/notify"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	expiredResult = "expired"
)

// Store persists commands and the audit trail
type Store interface {
	CreateCommand(ctx context.Context, cmd models.CopierCommand) error
	PendingCommands(ctx context.Context) ([]models.CopierCommand, error)
	ListCommands(ctx context.Context, status string, limit int) ([]models.CopierCommand, error)
	GetCommand(ctx context.Context, id string) (models.CopierCommand, error)
	CompleteCommand(ctx context.Context, id, status, result string, at time.Time) (bool, error)
	ExpirePendingBefore(ctx context.Context, cutoff, at time.Time, result string) ([]models.CopierCommand, error)
	AddLog(ctx context.Context, log models.ActivityLog) error
}

type Queue struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func New(store Store, notifier notify.Notifier, logger *slog.Logger) *Queue {
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Queue{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Enqueue stores a pending command. payload must be empty or a JSON object.
func (q *Queue) Enqueue(ctx context.Context, cmdType models.CommandType, payload json.RawMessage) (models.CopierCommand, error) {
	if !cmdType.Valid() {
		return models.CopierCommand{}, fmt.Errorf("unknown command type %q: %w", cmdType, models.ErrInvalidInput)
	}

	if string(payload) == "null" {
		payload = nil
	}

	if len(payload) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(payload, &obj); err != nil {
			return models.CopierCommand{}, fmt.Errorf("payload must be a JSON object: %w", models.ErrInvalidInput)
		}
	}

	cmd := models.CopierCommand{
		ID:        q.newID(),
		Type:      cmdType,
		Payload:   payload,
		Status:    models.CommandPending,
		CreatedAt: q.now(),
	}

	if err := q.store.CreateCommand(ctx, cmd); err != nil {
		return models.CopierCommand{}, err
	}

	metrics.IncCommand(string(cmdType), models.CommandPending)
	q.logger.Info("📨 Command enqueued",
		slog.String("command_id", cmd.ID),
		slog.String("type", string(cmd.Type)))
	q.audit(ctx, "INFO", "command_enqueued", "Command "+string(cmd.Type)+" enqueued", cmd)

	return cmd, nil
}

// Poll returns every pending command, oldest first
func (q *Queue) Poll(ctx context.Context) ([]models.CopierCommand, error) {
	return q.store.PendingCommands(ctx)
}

// List returns recent commands for the dashboard
func (q *Queue) List(ctx context.Context, status string, limit int) ([]models.CopierCommand, error) {
	if status != "" && status != models.CommandPending && !models.IsTerminalCommandStatus(status) {
		return nil, fmt.Errorf("unknown command status %q: %w", status, models.ErrInvalidInput)
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}

	return q.store.ListCommands(ctx, status, min(limit, MaxListLimit))
}

// Acknowledge moves a pending command to executed or failed. Acknowledging a
// command that is already terminal succeeds without changing it.
func (q *Queue) Acknowledge(ctx context.Context, id, status, result string) (models.CopierCommand, error) {
	if id == "" {
		return models.CopierCommand{}, fmt.Errorf("command id is required: %w", models.ErrInvalidInput)
	}

	if !models.IsTerminalCommandStatus(status) {
		return models.CopierCommand{}, fmt.Errorf("command %s: status must be executed or failed, got %q: %w",
			id, status, models.ErrInvalidInput)
	}

	updated, err := q.store.CompleteCommand(ctx, id, status, result, q.now())
	if err != nil {
		return models.CopierCommand{}, err
	}

	cmd, err := q.store.GetCommand(ctx, id)
	if err != nil {
		return models.CopierCommand{}, err
	}

	if !updated {
		q.logger.Debug("Command already acknowledged",
			slog.String("command_id", id),
			slog.String("status", cmd.Status))

		return cmd, nil
	}

	metrics.IncCommand(string(cmd.Type), status)

	level := "INFO"
	if status == models.CommandFailed {
		level = "ERROR"
		q.logger.Warn("❌ Command failed on agent",
			slog.String("command_id", id),
			slog.String("type", string(cmd.Type)),
			slog.String("result", result))
		q.notifier.Notify(ctx, fmt.Sprintf("❌ Command %s (%s) failed: %s", cmd.Type, id, result))
	} else {
		q.logger.Info("✅ Command executed",
			slog.String("command_id", id),
			slog.String("type", string(cmd.Type)))
	}

	q.audit(ctx, level, "command_"+status, "Command "+string(cmd.Type)+" "+status, cmd)

	return cmd, nil
}

// ExpireStale fails commands left pending for longer than ttl
func (q *Queue) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	now := q.now()

	expired, err := q.store.ExpirePendingBefore(ctx, now.Add(-ttl), now, expiredResult)
	if err != nil {
		return 0, err
	}

	for _, cmd := range expired {
		metrics.IncCommand(string(cmd.Type), expiredResult)
		q.logger.Warn("⌛ Command expired",
			slog.String("command_id", cmd.ID),
			slog.String("type", string(cmd.Type)),
			slog.Time("created_at", cmd.CreatedAt))
		q.audit(ctx, "WARN", "command_expired", "Command "+string(cmd.Type)+" expired unacknowledged", cmd)
	}

	if len(expired) > 0 {
		q.notifier.Notify(ctx, fmt.Sprintf("⌛ %d command(s) expired without agent acknowledgement", len(expired)))
	}

	return len(expired), nil
}

// RunExpiry calls ExpireStale every interval until ctx is done
func (q *Queue) RunExpiry(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.ExpireStale(ctx, ttl); err != nil {
				q.logger.Error("Command expiry sweep failed", slog.Any("error", err))
			}
		}
	}
}

func (q *Queue) audit(ctx context.Context, level, action, message string, cmd models.CopierCommand) {
	details, _ := json.Marshal(map[string]any{
		"command_id": cmd.ID,
		"type":       cmd.Type,
		"result":     cmd.Result,
	})

	if err := q.store.AddLog(ctx, models.ActivityLog{
		Level:   level,
		Action:  action,
		Message: message,
		Details: string(details),
	}); err != nil {
		q.logger.Warn("Failed to write activity log",
			slog.String("action", action),
			slog.String("command_id", cmd.ID),
			slog.Any("error", err))
	}
}
