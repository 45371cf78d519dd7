// Package handlers answers operator commands sent to the Telegram bot. Only
// the configured chat may use it; control commands go through the same queue
// as the dashboard.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"copier_bridge/internal/commands"
	"copier_bridge/internal/ledger"
	"copier_bridge/internal/models"
	"copier_bridge/internal/runstate"
	"copier_bridge/internal/storage"
)

// Sender delivers replies
type Sender interface {
	SendHTMLMessage(chatID int64, text string) error
}

type Handler struct {
	storage  *storage.Storage
	ledger   *ledger.Ledger
	commands *commands.Queue
	state    *runstate.Register
	sender   Sender
	chatID   int64
	logger   *slog.Logger
}

func New(
	storage *storage.Storage,
	ledger *ledger.Ledger,
	commands *commands.Queue,
	state *runstate.Register,
	sender Sender,
	chatID int64,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		storage:  storage,
		ledger:   ledger,
		commands: commands,
		state:    state,
		sender:   sender,
		chatID:   chatID,
		logger:   logger,
	}
}

// Run answers updates until the channel closes
func (h *Handler) Run(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		h.HandleUpdate(update)
	}
}

// HandleUpdate answers one command message
func (h *Handler) HandleUpdate(update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chatID := update.Message.Chat.ID
	response := h.Respond(ctx, chatID, update.Message.Command(), strings.Fields(update.Message.CommandArguments()))

	if err := h.sender.SendHTMLMessage(chatID, response); err != nil {
		h.logger.Warn("Failed to send bot reply", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

// Respond builds the reply to a command
func (h *Handler) Respond(ctx context.Context, chatID int64, cmd string, args []string) string {
	if chatID != h.chatID {
		h.logger.Warn("⛔ Command from unknown chat",
			slog.Int64("chat_id", chatID),
			slog.String("command", cmd))

		return "⛔ This chat is not allowed to control the copier"
	}

	h.logger.Info("Command received",
		slog.Int64("chat_id", chatID),
		slog.String("command", cmd),
		slog.Any("args", args))

	switch cmd {
	case "start", "help":
		return h.handleHelp()
	case "status":
		return h.handleStatus(ctx)
	case "accounts":
		return h.handleAccounts(ctx)
	case "trades":
		return h.handleTrades(ctx, args)
	case "pending":
		return h.handlePending(ctx)
	case "logs":
		return h.handleLogs(ctx, args)
	case "start_copier":
		return h.enqueue(ctx, models.CommandStartCopier, nil)
	case "stop_copier":
		return h.enqueue(ctx, models.CommandStopCopier, nil)
	case "close_all":
		return h.enqueue(ctx, models.CommandCloseAllTrades, nil)
	case "sync_now":
		return h.enqueue(ctx, models.CommandSyncNow, nil)
	case "set_master":
		return h.enqueueForAccount(ctx, models.CommandSetMaster, args)
	case "flatten":
		return h.enqueueForAccount(ctx, models.CommandFlattenAccount, args)
	default:
		return "❌ Unknown command. /help"
	}
}

func (h *Handler) handleHelp() string {
	return `🤖 <b>Copier bridge</b>

📈 Info:
/status - Copier state and today's numbers
/accounts - Accounts and their status
/trades [limit] - Recent trades
/pending - Commands waiting for the agent
/logs [limit] - Audit trail

🔄 Control (queued for the agent):
/start_copier
/stop_copier
/close_all
/flatten &lt;account&gt;
/set_master &lt;account&gt;
/sync_now`
}

func (h *Handler) handleStatus(ctx context.Context) string {
	state, err := h.state.Get(ctx)
	if err != nil {
		return h.errorReply(err)
	}

	tradesToday, err := h.ledger.CountToday(ctx)
	if err != nil {
		return h.errorReply(err)
	}

	active, err := h.storage.CountActiveAccounts(ctx)
	if err != nil {
		return h.errorReply(err)
	}

	running := "⏹ stopped"
	if state.IsRunning {
		running = "▶️ running"
	}

	master := state.MasterAccount
	if master == "" {
		master = "-"
	}

	lines := []string{
		"📊 <b>STATUS</b>",
		"Copier: " + running,
		"Master: " + html.EscapeString(master),
		fmt.Sprintf("Active accounts: %d", active),
		fmt.Sprintf("Trades today: %d", tradesToday),
	}

	if !state.UpdatedAt.IsZero() {
		lines = append(lines, "Updated: "+state.UpdatedAt.Local().Format("02.01 15:04:05"))
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handleAccounts(ctx context.Context) string {
	accounts, err := h.storage.GetAccounts(ctx)
	if err != nil {
		return h.errorReply(err)
	}

	if len(accounts) == 0 {
		return "📝 No accounts yet, waiting for the first sync"
	}

	lines := []string{"📋 <b>ACCOUNTS</b>\n"}

	for _, acc := range accounts {
		icon := "🔴"
		if acc.Status == models.StatusConnected {
			icon = "🟢"
		}

		masterIcon := ""
		if acc.IsMaster {
			masterIcon = " 👑"
		}

		disabledIcon := ""
		if !acc.IsMaster && !acc.IsActive {
			disabledIcon = " 🛑"
		}

		line := fmt.Sprintf("%s %s%s%s x%d  PnL %.2f",
			icon, html.EscapeString(acc.AccountName), masterIcon, disabledIcon, acc.ContractSize, acc.TotalPnL)
		if acc.ClientName != "" {
			line += "\n   " + html.EscapeString(acc.ClientName)
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handleTrades(ctx context.Context, args []string) string {
	trades, err := h.ledger.Recent(ctx, limitArg(args, 10, 50))
	if err != nil {
		return h.errorReply(err)
	}

	if len(trades) == 0 {
		return "📊 No trades yet"
	}

	lines := []string{fmt.Sprintf("📊 <b>TRADES</b> (last %d)\n", len(trades))}

	for _, tr := range trades {
		lines = append(lines, fmt.Sprintf("%s %s x%d @ %.2f\n   %s | %s → %d slaves",
			html.EscapeString(tr.Action), html.EscapeString(tr.Instrument), tr.Quantity, tr.FillPrice,
			tr.FillTime.Local().Format("02.01 15:04:05"), html.EscapeString(tr.MasterAccount), len(tr.SlavesCopied)))
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handlePending(ctx context.Context) string {
	pending, err := h.commands.Poll(ctx)
	if err != nil {
		return h.errorReply(err)
	}

	if len(pending) == 0 {
		return "✅ Nothing pending"
	}

	lines := []string{fmt.Sprintf("⏳ <b>PENDING</b> (%d)\n", len(pending))}

	for _, cmd := range pending {
		lines = append(lines, fmt.Sprintf("%s %s\n   since %s",
			cmd.Type, shortID(cmd.ID), cmd.CreatedAt.Local().Format("02.01 15:04:05")))
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handleLogs(ctx context.Context, args []string) string {
	logs, err := h.storage.GetLogs(ctx, limitArg(args, 20, 100), 0)
	if err != nil {
		return h.errorReply(err)
	}

	if len(logs) == 0 {
		return "📋 Audit trail is empty"
	}

	lines := []string{fmt.Sprintf("📋 <b>AUDIT</b> (last %d)\n", len(logs))}

	for _, log := range logs {
		levelIcon := "ℹ️"
		switch log.Level {
		case "WARN":
			levelIcon = "⚠️"
		case "ERROR":
			levelIcon = "❌"
		}

		lines = append(lines, fmt.Sprintf("%s [%s] %s\n   %s",
			levelIcon, log.Action, html.EscapeString(log.Message), log.CreatedAt.Local().Format("02.01 15:04")))
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) enqueueForAccount(ctx context.Context, cmdType models.CommandType, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("❌ Usage: /%s &lt;account&gt;", commandName(cmdType))
	}

	payload, err := json.Marshal(map[string]string{"account_name": args[0]})
	if err != nil {
		return h.errorReply(err)
	}

	return h.enqueue(ctx, cmdType, payload)
}

func (h *Handler) enqueue(ctx context.Context, cmdType models.CommandType, payload json.RawMessage) string {
	cmd, err := h.commands.Enqueue(ctx, cmdType, payload)
	if err != nil {
		return h.errorReply(err)
	}

	return fmt.Sprintf("📨 %s queued (%s), the agent picks it up on its next poll", cmd.Type, shortID(cmd.ID))
}

func commandName(t models.CommandType) string {
	if t == models.CommandFlattenAccount {
		return "flatten"
	}

	return string(t)
}

// limitArg reads an optional positive limit capped at maxLimit
func limitArg(args []string, def, maxLimit int) int {
	if len(args) == 0 {
		return def
	}

	l, err := strconv.Atoi(args[0])
	if err != nil || l <= 0 {
		return def
	}

	return min(l, maxLimit)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func (h *Handler) errorReply(err error) string {
	if errors.Is(err, models.ErrInvalidInput) {
		return "❌ " + html.EscapeString(err.Error())
	}

	h.logger.Error("Bot command failed", slog.Any("error", err))

	return "❌ Internal error, see server logs"
}
