// Package reconciler merges account snapshots reported by the agent into the
// account table.
//
// The agent and the dashboard write the same rows without locks. They never
// conflict because they own disjoint fields: the dashboard owns is_active and
// contract_size, the agent owns telemetry. A full sync writes the complete
// row; a telemetry-only sync never touches control fields.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"copier_bridge/internal/directory"
	"copier_bridge/internal/metrics"
	"copier_bridge/internal/models"
)

const (
	ModeFull      = "full"
	ModeTelemetry = "telemetry"
)

// AccountStore writes account rows
type AccountStore interface {
	UpsertMaster(ctx context.Context, name string, labels models.Labels, status string) error
	DemoteMasters(ctx context.Context, keep string) (int64, error)
	UpsertAccount(ctx context.Context, acc models.CopierAccount) error
	UpdateTelemetry(ctx context.Context, snap models.AccountSnapshot, isRunning bool) (bool, error)
	ApplyRunState(ctx context.Context, isRunning bool) (int64, error)
}

// LabelResolver looks up directory labels
type LabelResolver interface {
	Resolve(ctx context.Context, names []string) (map[string]models.Labels, error)
}

// StateRegister is the run state singleton
type StateRegister interface {
	Get(ctx context.Context) (models.CopierState, error)
	Set(ctx context.Context, upd models.StateUpdate) (models.CopierState, error)
}

// Request is one sync call. IsRunning may be omitted, the stored run state
// is used then.
type Request struct {
	MasterAccount string                   `json:"master_account"`
	SlaveAccounts []models.AccountSnapshot `json:"slave_accounts"`
	IsRunning     *bool                    `json:"is_running,omitempty"`
	PnLOnly       bool                     `json:"pnl_only"`
}

// RowError describes one skipped row
type RowError struct {
	AccountName string `json:"account_name"`
	Error       string `json:"error"`
}

// Result summarizes a sync. Skipped rows do not fail the call.
type Result struct {
	Mode         string             `json:"mode"`
	Applied      int                `json:"applied"`
	Skipped      []RowError         `json:"skipped,omitempty"`
	Disconnected int64              `json:"disconnected,omitempty"`
	State        models.CopierState `json:"state"`
}

type Reconciler struct {
	accounts AccountStore
	resolver LabelResolver
	state    StateRegister
	logger   *slog.Logger
}

func New(accounts AccountStore, resolver LabelResolver, state StateRegister, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		accounts: accounts,
		resolver: resolver,
		state:    state,
		logger:   logger,
	}
}

// Sync applies req. Per-row failures are logged and skipped; the call fails
// only on invalid input or when the run state cannot be written.
func (r *Reconciler) Sync(ctx context.Context, req Request) (Result, error) {
	req.MasterAccount = strings.TrimSpace(req.MasterAccount)

	mode := ModeFull
	if req.PnLOnly {
		mode = ModeTelemetry
	}

	if mode == ModeFull && req.MasterAccount == "" {
		return Result{}, fmt.Errorf("master_account is required for a full sync: %w", models.ErrInvalidInput)
	}

	for i, snap := range req.SlaveAccounts {
		if strings.TrimSpace(snap.AccountName) == "" {
			return Result{}, fmt.Errorf("slave_accounts[%d]: account_name is required: %w", i, models.ErrInvalidInput)
		}

		if mode == ModeFull && snap.ContractSize != nil && *snap.ContractSize < 1 {
			return Result{}, fmt.Errorf("slave_accounts[%d]: contract_size must be at least 1: %w", i, models.ErrInvalidInput)
		}
	}

	isRunning, err := r.isRunning(ctx, req)
	if err != nil {
		return Result{}, err
	}

	metrics.IncSync(mode)
	result := Result{Mode: mode}

	if mode == ModeFull {
		r.fullSync(ctx, req, isRunning, &result)
	} else {
		r.telemetrySync(ctx, req, isRunning, &result)
	}

	// is_running is global, rows outside this request follow it too
	n, err := r.accounts.ApplyRunState(ctx, isRunning)
	if err != nil {
		r.logger.Error("Failed to apply run state to accounts",
			slog.Bool("is_running", isRunning),
			slog.Any("error", err))
	} else if !isRunning {
		result.Disconnected = n
	}

	upd := models.StateUpdate{IsRunning: &isRunning}
	if req.MasterAccount != "" {
		upd.MasterAccount = &req.MasterAccount
	}

	state, err := r.state.Set(ctx, upd)
	if err != nil {
		return result, fmt.Errorf("sync %s of %s: %w", mode, req.MasterAccount, err)
	}

	result.State = state

	r.logger.Debug("🔄 Sync applied",
		slog.String("mode", mode),
		slog.String("master_account", req.MasterAccount),
		slog.Int("applied", result.Applied),
		slog.Int("skipped", len(result.Skipped)),
		slog.Bool("is_running", isRunning))

	return result, nil
}

func (r *Reconciler) isRunning(ctx context.Context, req Request) (bool, error) {
	if req.IsRunning != nil {
		return *req.IsRunning, nil
	}

	current, err := r.state.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("read run state: %w", err)
	}

	return current.IsRunning, nil
}

func (r *Reconciler) fullSync(ctx context.Context, req Request, isRunning bool, result *Result) {
	names := make([]string, 0, len(req.SlaveAccounts)+1)
	names = append(names, req.MasterAccount)
	for _, snap := range req.SlaveAccounts {
		names = append(names, snap.AccountName)
	}

	labels := r.resolveLabels(ctx, names)

	// Master first, a reader never sees slaves of a missing master
	masterStatus := models.DeriveStatus(true, isRunning)
	if err := r.accounts.UpsertMaster(ctx, req.MasterAccount, directory.LabelsFor(labels, req.MasterAccount), masterStatus); err != nil {
		r.skip(result, req.MasterAccount, err)
	} else {
		result.Applied++
		metrics.IncSyncRow(ModeFull, "applied")
	}

	if n, err := r.accounts.DemoteMasters(ctx, req.MasterAccount); err != nil {
		r.logger.Error("Failed to demote previous master",
			slog.String("master_account", req.MasterAccount),
			slog.Any("error", err))
	} else if n > 0 {
		r.logger.Info("👑 Master account changed", slog.String("master_account", req.MasterAccount))
	}

	for _, snap := range req.SlaveAccounts {
		if snap.AccountName == req.MasterAccount {
			continue
		}

		acc := fullRow(snap, req.MasterAccount, isRunning, directory.LabelsFor(labels, snap.AccountName))
		if err := r.accounts.UpsertAccount(ctx, acc); err != nil {
			r.skip(result, snap.AccountName, err)
			continue
		}

		result.Applied++
		metrics.IncSyncRow(ModeFull, "applied")
	}
}

func (r *Reconciler) telemetrySync(ctx context.Context, req Request, isRunning bool, result *Result) {
	for _, snap := range req.SlaveAccounts {
		found, err := r.accounts.UpdateTelemetry(ctx, snap, isRunning)
		if err != nil {
			r.skip(result, snap.AccountName, err)
			continue
		}

		if !found {
			r.skip(result, snap.AccountName, fmt.Errorf("account %s: %w", snap.AccountName, models.ErrNotFound))
			continue
		}

		result.Applied++
		metrics.IncSyncRow(ModeTelemetry, "applied")
	}
}

// resolveLabels is best effort: a failed lookup yields empty labels
func (r *Reconciler) resolveLabels(ctx context.Context, names []string) map[string]models.Labels {
	labels, err := r.resolver.Resolve(ctx, names)
	if err != nil {
		r.logger.Warn("Directory unavailable, syncing with empty labels",
			slog.Int("accounts", len(names)),
			slog.Any("error", err))

		return map[string]models.Labels{}
	}

	return labels
}

func (r *Reconciler) skip(result *Result, name string, err error) {
	mode := result.Mode

	r.logger.Error("Sync row skipped",
		slog.String("account_name", name),
		slog.String("mode", mode),
		slog.Any("error", err))

	metrics.IncSyncRow(mode, "skipped")
	result.Skipped = append(result.Skipped, RowError{AccountName: name, Error: err.Error()})
}

// fullRow builds the complete slave row. Omitted control fields fall back to
// active with one contract, omitted telemetry to zero.
func fullRow(snap models.AccountSnapshot, master string, isRunning bool, labels models.Labels) models.CopierAccount {
	acc := models.CopierAccount{
		AccountName:   snap.AccountName,
		MasterAccount: master,
		ClientName:    labels.ClientName,
		AgencyName:    labels.AgencyName,
		IsActive:      valueOr(snap.IsActive, true),
		ContractSize:  valueOr(snap.ContractSize, 1),
		Unrealized:    valueOr(snap.Unrealized, 0),
		Realized:      valueOr(snap.Realized, 0),
		NetLiq:        valueOr(snap.NetLiq, 0),
		PositionQty:   valueOr(snap.PositionQty, 0),
		TotalPnL:      valueOr(snap.TotalPnL, 0),
		TradesCopied:  valueOr(snap.TradesCopied, 0),
		LastTrade:     valueOr(snap.LastTrade, ""),
	}

	acc.Status = models.DeriveStatus(acc.IsActive, isRunning)

	return acc
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}

	return *p
}
