package storage

import (
	"context"
	"database/sql"
	"time"

	"copier_bridge/internal/models"
)

// AddLog appends an audit trail entry
func (s *Storage) AddLog(ctx context.Context, log models.ActivityLog) error {
	var details any
	if log.Details != "" {
		details = log.Details
	}

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (level, action, message, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, log.Level, log.Action, log.Message, details, toMicros(createdAt))

	return err
}

// GetLogs returns audit entries newest first
func (s *Storage) GetLogs(ctx context.Context, limit, offset int) ([]models.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, action, message, details, created_at
		FROM activity_log
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.ActivityLog, 0)
	for rows.Next() {
		var log models.ActivityLog
		var details sql.NullString
		var createdAt int64

		if err := rows.Scan(&log.ID, &log.Level, &log.Action, &log.Message, &details, &createdAt); err != nil {
			return nil, err
		}

		log.Details = details.String
		log.CreatedAt = fromMicros(createdAt)
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
