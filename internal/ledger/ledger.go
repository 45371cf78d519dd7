// Package ledger journals master fills. It is append only and never touches
// account state.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"copier_bridge/internal/metrics"
	"copier_bridge/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Store persists trade events
type Store interface {
	CreateTradeEvent(ctx context.Context, ev models.TradeEvent) (int64, error)
	GetTradeEvents(ctx context.Context, limit int) ([]models.TradeEvent, error)
	LatestTradeEvent(ctx context.Context) (*models.TradeEvent, error)
	CountTradeEventsSince(ctx context.Context, since time.Time) (int, error)
	ExecutionExists(ctx context.Context, executionID string) (bool, error)
}

// Submission is one fill report from the agent. FillTime defaults to the
// time the report was received.
type Submission struct {
	MasterAccount string     `json:"master_account"`
	Instrument    string     `json:"instrument"`
	Action        string     `json:"action"`
	Quantity      int        `json:"quantity"`
	FillPrice     float64    `json:"fill_price"`
	FillTime      *time.Time `json:"fill_time,omitempty"`
	ExecutionID   string     `json:"execution_id"`
	SlavesCopied  []string   `json:"slaves_copied"`
}

// Validate checks the required fields
func (s Submission) Validate() error {
	switch {
	case strings.TrimSpace(s.MasterAccount) == "":
		return fmt.Errorf("master_account is required: %w", models.ErrInvalidInput)
	case strings.TrimSpace(s.Instrument) == "":
		return fmt.Errorf("instrument is required: %w", models.ErrInvalidInput)
	case strings.TrimSpace(s.Action) == "":
		return fmt.Errorf("action is required: %w", models.ErrInvalidInput)
	case s.Quantity <= 0:
		return fmt.Errorf("quantity must be positive: %w", models.ErrInvalidInput)
	case s.FillPrice < 0:
		return fmt.Errorf("fill_price must not be negative: %w", models.ErrInvalidInput)
	}

	return nil
}

type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Submit appends one fill and returns its id. A failed write is returned to
// the caller, who owns the resend.
func (l *Ledger) Submit(ctx context.Context, sub Submission) (int64, error) {
	if err := sub.Validate(); err != nil {
		return 0, err
	}

	received := l.now()
	fillTime := received
	if sub.FillTime != nil && !sub.FillTime.IsZero() {
		fillTime = *sub.FillTime
	}

	slaves := sub.SlavesCopied
	if slaves == nil {
		slaves = []string{}
	}

	// Duplicates are journaled as sent, only counted
	result := "ok"
	if sub.ExecutionID != "" {
		dup, err := l.store.ExecutionExists(ctx, sub.ExecutionID)
		if err != nil {
			l.logger.Warn("Duplicate check failed",
				slog.String("execution_id", sub.ExecutionID),
				slog.Any("error", err))
		} else if dup {
			result = "duplicate"
			l.logger.Warn("Trade with known execution id resubmitted",
				slog.String("master_account", sub.MasterAccount),
				slog.String("execution_id", sub.ExecutionID))
		}
	}

	id, err := l.store.CreateTradeEvent(ctx, models.TradeEvent{
		MasterAccount: sub.MasterAccount,
		Instrument:    sub.Instrument,
		Action:        sub.Action,
		Quantity:      sub.Quantity,
		FillPrice:     sub.FillPrice,
		FillTime:      fillTime,
		ExecutionID:   sub.ExecutionID,
		SlavesCopied:  slaves,
		ReceivedAt:    received,
	})
	if err != nil {
		metrics.IncTradeIngested("error")
		l.logger.Error("Failed to journal trade",
			slog.String("master_account", sub.MasterAccount),
			slog.String("execution_id", sub.ExecutionID),
			slog.Any("error", err))

		return 0, err
	}

	metrics.IncTradeIngested(result)
	l.logger.Info("📈 Trade journaled",
		slog.Int64("id", id),
		slog.String("master_account", sub.MasterAccount),
		slog.String("instrument", sub.Instrument),
		slog.String("action", sub.Action),
		slog.Int("quantity", sub.Quantity))

	return id, nil
}

// Recent returns the newest trades first. limit is clamped to [1, MaxLimit],
// zero or negative means DefaultLimit.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.TradeEvent, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	limit = min(limit, MaxLimit)

	return l.store.GetTradeEvents(ctx, limit)
}

// Latest returns the most recent trade or nil
func (l *Ledger) Latest(ctx context.Context) (*models.TradeEvent, error) {
	return l.store.LatestTradeEvent(ctx)
}

// CountToday counts fills since local midnight
func (l *Ledger) CountToday(ctx context.Context) (int, error) {
	now := l.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	return l.store.CountTradeEventsSince(ctx, midnight)
}
