package models

import "time"

// User is a dashboard operator
type User struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ActivityLog is one audit trail entry
type ActivityLog struct {
	ID        int       `json:"id"`
	Level     string    `json:"level"`  // "INFO", "WARN", "ERROR"
	Action    string    `json:"action"` // "command_enqueued", "account_patched", etc.
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"` // JSON with extra context
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStats is the aggregate shown on the dashboard header
type DashboardStats struct {
	TradesToday    int         `json:"trades_today"`
	ActiveAccounts int         `json:"active_accounts"`
	LastTrade      *TradeEvent `json:"last_trade,omitempty"`
}

// AccountPatch holds the dashboard-editable fields of an account
type AccountPatch struct {
	IsActive     *bool `json:"is_active,omitempty"`
	ContractSize *int  `json:"contract_size,omitempty"`
}
