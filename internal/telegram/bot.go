package telegram

import (
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Service wraps the operator bot
type Service struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// Commands shown in the bot menu
var Commands = []tgbotapi.BotCommand{
	{Command: "status", Description: "Copier state and today's numbers"},
	{Command: "accounts", Description: "Accounts and their status"},
	{Command: "trades", Description: "Recent trades [limit]"},
	{Command: "pending", Description: "Commands waiting for the agent"},
	{Command: "start_copier", Description: "Ask the agent to start copying"},
	{Command: "stop_copier", Description: "Ask the agent to stop copying"},
	{Command: "close_all", Description: "Close all trades"},
	{Command: "flatten", Description: "Flatten one account <name>"},
	{Command: "set_master", Description: "Switch master account <name>"},
	{Command: "sync_now", Description: "Request an immediate sync"},
	{Command: "logs", Description: "Audit trail [limit]"},
	{Command: "help", Description: "Help"},
}

// New authorizes the bot against endpoint (tgbotapi.APIEndpoint in production)
func New(token, endpoint string, client *http.Client, logger *slog.Logger) (*Service, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, err
	}

	logger.Info("✅ Bot authorized", slog.String("username", bot.Self.UserName))

	if _, err := bot.Request(tgbotapi.NewSetMyCommands(Commands...)); err != nil {
		logger.Error("Failed to set commands", slog.Any("error", err))
	} else {
		logger.Info("✅ Bot commands set")
	}

	return &Service{
		bot:    bot,
		logger: logger,
	}, nil
}

// GetUpdatesChan starts long polling
func (s *Service) GetUpdatesChan() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	return s.bot.GetUpdatesChan(u)
}

// StopReceivingUpdates ends long polling and closes the updates channel
func (s *Service) StopReceivingUpdates() {
	s.bot.StopReceivingUpdates()
}

// SendHTMLMessage sends text with HTML formatting
func (s *Service) SendHTMLMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := s.bot.Send(msg)

	return err
}
