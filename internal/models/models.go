package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Account statuses
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// CopierAccount is one master or slave account as seen by the dashboard.
// Control fields (IsActive, ContractSize) belong to the dashboard, telemetry
// fields belong to the agent.
type CopierAccount struct {
	ID            int64     `json:"id"`
	AccountName   string    `json:"account_name"`
	MasterAccount string    `json:"master_account"`
	IsMaster      bool      `json:"is_master"`
	ClientName    string    `json:"client_name"`
	AgencyName    string    `json:"agency_name"`
	Status        string    `json:"status"`
	IsActive      bool      `json:"is_active"`
	ContractSize  int       `json:"contract_size"`
	Unrealized    float64   `json:"unrealized"`
	Realized      float64   `json:"realized"`
	NetLiq        float64   `json:"net_liquidation"`
	PositionQty   int       `json:"position_qty"`
	TotalPnL      float64   `json:"total_pnl"`
	TradesCopied  int       `json:"trades_copied"`
	LastTrade     string    `json:"last_trade"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DeriveStatus returns the status of a slave account.
func DeriveStatus(isActive, isRunning bool) string {
	if isActive && isRunning {
		return StatusConnected
	}

	return StatusDisconnected
}

// TradeEvent is one master fill, immutable once stored.
type TradeEvent struct {
	ID            int64     `json:"id"`
	MasterAccount string    `json:"master_account"`
	Instrument    string    `json:"instrument"`
	Action        string    `json:"action"`
	Quantity      int       `json:"quantity"`
	FillPrice     float64   `json:"fill_price"`
	FillTime      time.Time `json:"fill_time"`
	ExecutionID   string    `json:"execution_id"`
	SlavesCopied  []string  `json:"slaves_copied"`
	ReceivedAt    time.Time `json:"received_at"`
}

// CommandType is a control command understood by the agent.
type CommandType string

const (
	CommandStartCopier    CommandType = "start_copier"
	CommandStopCopier     CommandType = "stop_copier"
	CommandCloseAllTrades CommandType = "close_all_trades"
	CommandSetMaster      CommandType = "set_master"
	CommandFlattenAccount CommandType = "flatten_account"
	CommandSyncNow        CommandType = "sync_now"
)

// Valid reports whether the agent knows this command type.
func (t CommandType) Valid() bool {
	switch t {
	case CommandStartCopier, CommandStopCopier, CommandCloseAllTrades,
		CommandSetMaster, CommandFlattenAccount, CommandSyncNow:
		return true
	}

	return false
}

// Command statuses. Executed and failed are terminal.
const (
	CommandPending  = "pending"
	CommandExecuted = "executed"
	CommandFailed   = "failed"
)

// IsTerminalCommandStatus reports whether status ends a command's life.
func IsTerminalCommandStatus(status string) bool {
	return status == CommandExecuted || status == CommandFailed
}

// CopierCommand is a dashboard-issued command waiting for the agent.
type CopierCommand struct {
	ID         string          `json:"id"`
	Type       CommandType     `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     string          `json:"status"`
	Result     string          `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
}

// CopierState is the global run state singleton.
type CopierState struct {
	IsRunning     bool      `json:"is_running"`
	MasterAccount string    `json:"master_account"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StateUpdate is a partial write to CopierState, nil fields are kept.
type StateUpdate struct {
	IsRunning     *bool   `json:"is_running,omitempty"`
	MasterAccount *string `json:"master_account,omitempty"`
}

// Labels are the directory labels of one account.
type Labels struct {
	ClientName string `json:"client_name"`
	AgencyName string `json:"agency_name"`
}

// AccountSnapshot is one account as reported by the agent. In telemetry-only
// syncs only the telemetry pointers that are set get written.
type AccountSnapshot struct {
	AccountName  string   `json:"account_name"`
	IsActive     *bool    `json:"is_active,omitempty"`
	ContractSize *int     `json:"contract_size,omitempty"`
	Unrealized   *float64 `json:"unrealized,omitempty"`
	Realized     *float64 `json:"realized,omitempty"`
	NetLiq       *float64 `json:"net_liquidation,omitempty"`
	PositionQty  *int     `json:"position_qty,omitempty"`
	TotalPnL     *float64 `json:"total_pnl,omitempty"`
	TradesCopied *int     `json:"trades_copied,omitempty"`
	LastTrade    *string  `json:"last_trade,omitempty"`
}
