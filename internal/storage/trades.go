package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"copier_bridge/internal/models"
)

const tradeColumns = `id, master_account, instrument, action, quantity, fill_price, fill_time,
       execution_id, slaves_copied, received_at`

func scanTrade(row rowScanner) (models.TradeEvent, error) {
	var ev models.TradeEvent
	var fillTime, receivedAt int64
	var slavesJSON string

	err := row.Scan(&ev.ID, &ev.MasterAccount, &ev.Instrument, &ev.Action, &ev.Quantity,
		&ev.FillPrice, &fillTime, &ev.ExecutionID, &slavesJSON, &receivedAt)
	if err != nil {
		return models.TradeEvent{}, err
	}

	if err := json.Unmarshal([]byte(slavesJSON), &ev.SlavesCopied); err != nil {
		return models.TradeEvent{}, fmt.Errorf("trade %d: bad slaves_copied: %w", ev.ID, err)
	}

	if ev.SlavesCopied == nil {
		ev.SlavesCopied = []string{}
	}

	ev.FillTime = fromMicros(fillTime)
	ev.ReceivedAt = fromMicros(receivedAt)

	return ev, nil
}

// CreateTradeEvent appends a fill to the journal and returns its id
func (s *Storage) CreateTradeEvent(ctx context.Context, ev models.TradeEvent) (int64, error) {
	slaves := ev.SlavesCopied
	if slaves == nil {
		slaves = []string{}
	}

	slavesJSON, err := json.Marshal(slaves)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_events (master_account, instrument, action, quantity, fill_price, fill_time,
			execution_id, slaves_copied, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.MasterAccount, ev.Instrument, ev.Action, ev.Quantity, ev.FillPrice, toMicros(ev.FillTime),
		ev.ExecutionID, string(slavesJSON), toMicros(ev.ReceivedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade %s/%s: %w", ev.MasterAccount, ev.ExecutionID, err)
	}

	return result.LastInsertId()
}

// GetTradeEvents returns the newest trades first
func (s *Storage) GetTradeEvents(ctx context.Context, limit int) ([]models.TradeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trade_events
		ORDER BY fill_time DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]models.TradeEvent, 0)
	for rows.Next() {
		ev, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}

		trades = append(trades, ev)
	}

	return trades, rows.Err()
}

// LatestTradeEvent returns the most recent trade or nil when the journal is empty
func (s *Storage) LatestTradeEvent(ctx context.Context) (*models.TradeEvent, error) {
	ev, err := scanTrade(s.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trade_events
		ORDER BY fill_time DESC, id DESC
		LIMIT 1
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &ev, nil
}

// CountTradeEventsSince counts fills at or after since
func (s *Storage) CountTradeEventsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM trade_events WHERE fill_time >= ?
	`, toMicros(since)).Scan(&count)

	return count, err
}

// ExecutionExists reports whether a fill with this execution id is already journaled
func (s *Storage) ExecutionExists(ctx context.Context, executionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM trade_events WHERE execution_id = ?
	`, executionID).Scan(&count)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
