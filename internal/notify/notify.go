// Package notify sends operator alerts. Delivery is best effort and never
// blocks the caller.
package notify

import (
	"context"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers a short text alert to operators
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop drops every alert
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Telegram posts alerts to one chat through a bot
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegram authorizes the bot against endpoint (tgbotapi.APIEndpoint in production)
func NewTelegram(token, endpoint string, chatID int64, client *http.Client, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, err
	}

	logger.Info("✅ Telegram notifier authorized", slog.String("username", bot.Self.UserName))

	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

// Notify sends text in the background
func (t *Telegram) Notify(_ context.Context, text string) {
	go t.send(text)
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("Failed to send telegram alert",
			slog.Int64("chat_id", t.chatID),
			slog.Any("error", err))
	}
}
