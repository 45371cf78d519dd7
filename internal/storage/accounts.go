package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"copier_bridge/internal/models"
)

const accountColumns = `id, account_name, master_account, is_master, client_name, agency_name, status,
       is_active, contract_size, unrealized, realized, net_liquidation, position_qty,
       total_pnl, trades_copied, last_trade, created_at, updated_at`

// derivedStatus computes status from the stored row and the run state; it
// binds is_running twice.
const derivedStatus = `CASE
					WHEN is_master = 1 AND ? = 1 THEN 'connected'
					WHEN is_master = 0 AND is_active = 1 AND ? = 1 THEN 'connected'
					ELSE 'disconnected'
				END`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.CopierAccount, error) {
	var acc models.CopierAccount
	var isMasterInt, isActiveInt int
	var createdAt, updatedAt int64

	err := row.Scan(&acc.ID, &acc.AccountName, &acc.MasterAccount, &isMasterInt,
		&acc.ClientName, &acc.AgencyName, &acc.Status, &isActiveInt, &acc.ContractSize,
		&acc.Unrealized, &acc.Realized, &acc.NetLiq, &acc.PositionQty,
		&acc.TotalPnL, &acc.TradesCopied, &acc.LastTrade, &createdAt, &updatedAt)
	if err != nil {
		return models.CopierAccount{}, err
	}

	acc.IsMaster = isMasterInt == 1
	acc.IsActive = isActiveInt == 1
	acc.CreatedAt = fromMicros(createdAt)
	acc.UpdatedAt = fromMicros(updatedAt)

	return acc, nil
}

func (s *Storage) queryAccounts(ctx context.Context, query string, args ...any) ([]models.CopierAccount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.CopierAccount, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, acc)
	}

	return accounts, rows.Err()
}

// UpsertMaster creates or refreshes the master row. Control fields of an
// existing row are left alone.
func (s *Storage) UpsertMaster(ctx context.Context, name string, labels models.Labels, status string) error {
	return s.withStamp(func(stamp int64) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO copier_accounts (account_name, master_account, is_master, client_name, agency_name, status, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?, ?, ?, ?)
			ON CONFLICT(account_name) DO UPDATE SET
				master_account = excluded.master_account,
				is_master = 1,
				client_name = excluded.client_name,
				agency_name = excluded.agency_name,
				status = excluded.status,
				updated_at = excluded.updated_at
		`, name, name, labels.ClientName, labels.AgencyName, status, stamp, stamp)
		if err != nil {
			return fmt.Errorf("failed to upsert master %s: %w", name, err)
		}

		return nil
	})
}

// DemoteMasters clears is_master on every row except keep
func (s *Storage) DemoteMasters(ctx context.Context, keep string) (int64, error) {
	var affected int64

	err := s.withStamp(func(stamp int64) error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE copier_accounts SET is_master = 0, updated_at = ?
			WHERE is_master = 1 AND account_name <> ?
		`, stamp, keep)
		if err != nil {
			return fmt.Errorf("failed to demote masters other than %s: %w", keep, err)
		}

		affected, _ = result.RowsAffected()

		return nil
	})

	return affected, err
}

// UpsertAccount writes the complete row, overwriting everything but the key
func (s *Storage) UpsertAccount(ctx context.Context, acc models.CopierAccount) error {
	return s.withStamp(func(stamp int64) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO copier_accounts (account_name, master_account, is_master, client_name, agency_name, status,
				is_active, contract_size, unrealized, realized, net_liquidation, position_qty,
				total_pnl, trades_copied, last_trade, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_name) DO UPDATE SET
				master_account = excluded.master_account,
				is_master = excluded.is_master,
				client_name = excluded.client_name,
				agency_name = excluded.agency_name,
				status = excluded.status,
				is_active = excluded.is_active,
				contract_size = excluded.contract_size,
				unrealized = excluded.unrealized,
				realized = excluded.realized,
				net_liquidation = excluded.net_liquidation,
				position_qty = excluded.position_qty,
				total_pnl = excluded.total_pnl,
				trades_copied = excluded.trades_copied,
				last_trade = excluded.last_trade,
				updated_at = excluded.updated_at
		`, acc.AccountName, acc.MasterAccount, boolToInt(acc.IsMaster), acc.ClientName, acc.AgencyName, acc.Status,
			boolToInt(acc.IsActive), acc.ContractSize, acc.Unrealized, acc.Realized, acc.NetLiq, acc.PositionQty,
			acc.TotalPnL, acc.TradesCopied, acc.LastTrade, stamp, stamp)
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", acc.AccountName, err)
		}

		return nil
	})
}

// UpdateTelemetry writes the telemetry values present in snap and recomputes
// status from the stored is_active. It never writes control fields. Returns
// false when the account does not exist.
func (s *Storage) UpdateTelemetry(ctx context.Context, snap models.AccountSnapshot, isRunning bool) (bool, error) {
	var found bool

	err := s.withStamp(func(stamp int64) error {
		running := boolToInt(isRunning)

		result, err := s.db.ExecContext(ctx, `
			UPDATE copier_accounts SET
				unrealized = coalesce(?, unrealized),
				realized = coalesce(?, realized),
				net_liquidation = coalesce(?, net_liquidation),
				position_qty = coalesce(?, position_qty),
				total_pnl = coalesce(?, total_pnl),
				trades_copied = coalesce(?, trades_copied),
				last_trade = coalesce(?, last_trade),
				status = `+derivedStatus+`,
				updated_at = ?
			WHERE account_name = ?
		`, nullable(snap.Unrealized), nullable(snap.Realized), nullable(snap.NetLiq), nullable(snap.PositionQty),
			nullable(snap.TotalPnL), nullable(snap.TradesCopied), nullable(snap.LastTrade),
			running, running, stamp, snap.AccountName)
		if err != nil {
			return fmt.Errorf("failed to update telemetry of %s: %w", snap.AccountName, err)
		}

		rows, _ := result.RowsAffected()
		found = rows > 0

		return nil
	})

	return found, err
}

// ApplyRunState re-derives the status of every account from the global run
// state and returns the number of rows that changed. A stop disconnects every
// row whatever its is_active or master_account.
func (s *Storage) ApplyRunState(ctx context.Context, isRunning bool) (int64, error) {
	var affected int64

	err := s.withStamp(func(stamp int64) error {
		running := boolToInt(isRunning)

		result, err := s.db.ExecContext(ctx, `
			UPDATE copier_accounts SET status = `+derivedStatus+`, updated_at = ?
			WHERE status <> `+derivedStatus+`
		`, running, running, stamp, running, running)
		if err != nil {
			return fmt.Errorf("failed to apply run state to accounts: %w", err)
		}

		affected, _ = result.RowsAffected()

		return nil
	})

	return affected, err
}

// PatchAccount applies dashboard edits to control fields and recomputes status
func (s *Storage) PatchAccount(ctx context.Context, id int64, patch models.AccountPatch, isRunning bool) (models.CopierAccount, error) {
	err := s.withStamp(func(stamp int64) error {
		active := nullableBool(patch.IsActive)

		result, err := s.db.ExecContext(ctx, `
			UPDATE copier_accounts SET
				is_active = coalesce(?, is_active),
				contract_size = coalesce(?, contract_size),
				status = CASE
					WHEN is_master = 1 THEN status
					WHEN coalesce(?, is_active) = 1 AND ? = 1 THEN 'connected'
					ELSE 'disconnected'
				END,
				updated_at = ?
			WHERE id = ?
		`, active, nullable(patch.ContractSize), active, boolToInt(isRunning), stamp, id)
		if err != nil {
			return fmt.Errorf("failed to patch account %d: %w", id, err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("account %d: %w", id, models.ErrNotFound)
		}

		return nil
	})
	if err != nil {
		return models.CopierAccount{}, err
	}

	return s.GetAccountByID(ctx, id)
}

// GetAccounts returns every account ordered by name
func (s *Storage) GetAccounts(ctx context.Context) ([]models.CopierAccount, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM copier_accounts ORDER BY account_name`)
}

// GetAccount returns the account with the given name
func (s *Storage) GetAccount(ctx context.Context, name string) (models.CopierAccount, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM copier_accounts WHERE account_name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.CopierAccount{}, fmt.Errorf("account %s: %w", name, models.ErrNotFound)
	}

	return acc, err
}

// GetAccountByID returns the account with the given id
func (s *Storage) GetAccountByID(ctx context.Context, id int64) (models.CopierAccount, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM copier_accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.CopierAccount{}, fmt.Errorf("account %d: %w", id, models.ErrNotFound)
	}

	return acc, err
}

// AccountsChangedSince returns rows with updated_at strictly after since (unix micros)
func (s *Storage) AccountsChangedSince(ctx context.Context, since int64) ([]models.CopierAccount, error) {
	return s.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM copier_accounts
		WHERE updated_at > ?
		ORDER BY updated_at, id
	`, since)
}

// CountActiveAccounts counts slave accounts switched on by the dashboard
func (s *Storage) CountActiveAccounts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM copier_accounts
		WHERE is_active = 1 AND is_master = 0
	`).Scan(&count)

	return count, err
}
