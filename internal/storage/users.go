package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"copier_bridge/internal/models"
)

// CreateUser creates a dashboard operator
func (s *Storage) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	now := time.Now()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`, username, passwordHash, toMicros(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, _ := result.LastInsertId()

	s.logger.Info("✅ User created", slog.String("username", username))

	return &models.User{
		ID:           int(id),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

// GetUserByUsername returns a user by name, sql.ErrNoRows when absent
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	var createdAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &createdAt)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = fromMicros(createdAt)

	return &user, nil
}

// UserExists reports whether username is taken
func (s *Storage) UserExists(ctx context.Context, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
