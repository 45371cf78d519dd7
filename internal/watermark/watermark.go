// Package watermark lets the agent fetch only the accounts that changed since
// its last checkpoint. Watermarks are store-assigned updated_at values, the
// caller's clock is never involved.
package watermark

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"copier_bridge/internal/models"
)

// Store reads changed accounts, since is in unix microseconds
type Store interface {
	AccountsChangedSince(ctx context.Context, since int64) ([]models.CopierAccount, error)
}

// Changes is the answer to a watermark query
type Changes struct {
	Accounts  []models.CopierAccount `json:"accounts"`
	Watermark time.Time              `json:"watermark"`
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// Since returns rows with updated_at strictly after since. The new watermark
// is the largest returned updated_at, or since itself when nothing changed.
func (s *Service) Since(ctx context.Context, since *time.Time) (Changes, error) {
	if since == nil {
		return Changes{}, fmt.Errorf("since is required: %w", models.ErrInvalidInput)
	}

	accounts, err := s.store.AccountsChangedSince(ctx, since.UnixMicro())
	if err != nil {
		return Changes{}, fmt.Errorf("accounts changed since %s: %w", since.Format(time.RFC3339Nano), err)
	}

	mark := since.UTC()
	for _, acc := range accounts {
		if acc.UpdatedAt.After(mark) {
			mark = acc.UpdatedAt
		}
	}

	return Changes{Accounts: accounts, Watermark: mark}, nil
}

// Parse reads a since value from a query string. RFC 3339 (with any
// fractional precision) and unix microseconds are accepted.
func Parse(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, fmt.Errorf("since is required: %w", models.ErrInvalidInput)
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}

	if micros, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMicro(micros).UTC()
		return &t, nil
	}

	return nil, fmt.Errorf("since %q is not an RFC 3339 timestamp or unix microseconds: %w", raw, models.ErrInvalidInput)
}
